package config

import "time"

// Script names of the conversion toolchain.
const (
	ScriptDividePDF     = "devide_pdf.py"
	ScriptPDF2Text      = "pdf2txt.py"
	ScriptDropNoWF      = "del_noWF.py"
	ScriptPANumber      = "pa_number.py"
	ScriptDBTable       = "dbTable2json.py"
	ScriptFeatureList   = "fc.py"
	ScriptAPISpec       = "api_specification.py"
	ScriptAPIList       = "api_list.py"
	ScriptConvertUML    = "convert_uml2img.py"
	defaultDataDir      = "/usr/local/var/pachat/data_result"
	defaultScriptDir    = "/usr/local/var/pachat/python_script"
	defaultDatabasePath = "/usr/local/var/pachat/db/collections.db"
	defaultBlevePath    = "/usr/local/var/pachat/indices/bleve"
)

// DefaultSheetRules selects extraction scripts by sheet name.
func DefaultSheetRules() []SheetRule {
	return []SheetRule{
		{SheetContains: "DB_TABLE", Script: ScriptDBTable},
		{SheetContains: "기능목록정의서", Script: ScriptFeatureList},
		{SheetContains: "API명세서", Script: ScriptAPISpec},
		{SheetContains: "API리스트", Script: ScriptAPIList},
	}
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8501
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 200
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = defaultDatabasePath
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = defaultBlevePath
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "llama3.2:1b"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 2048
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	if cfg.Convert.Interpreter == "" {
		cfg.Convert.Interpreter = "python"
	}
	if cfg.Convert.ScriptDir == "" {
		cfg.Convert.ScriptDir = defaultScriptDir
	}
	if cfg.Convert.UploadDir == "" {
		cfg.Convert.UploadDir = defaultDataDir
	}
	if cfg.Convert.OutputDir == "" {
		cfg.Convert.OutputDir = cfg.Convert.UploadDir
	}
	if cfg.Convert.PageScripts == nil {
		cfg.Convert.PageScripts = []string{ScriptDividePDF, ScriptPDF2Text, ScriptDropNoWF, ScriptPANumber}
	}
	if cfg.Convert.SheetRules == nil {
		cfg.Convert.SheetRules = DefaultSheetRules()
	}
	if cfg.Convert.DiagramScript == "" {
		cfg.Convert.DiagramScript = ScriptConvertUML
	}
	if cfg.Convert.PagesDir == "" {
		cfg.Convert.PagesDir = "DEVIDED_PDF_DIR"
	}
	if cfg.Convert.PageMapDir == "" {
		cfg.Convert.PageMapDir = "EXTRACTED_ONLY_PA_NUMBER_EACHPAGE"
	}
	if cfg.Convert.APIListDir == "" {
		cfg.Convert.APIListDir = "API_LIST_DIR"
	}
	if cfg.Convert.APISpecDir == "" {
		cfg.Convert.APISpecDir = "API_DIR"
	}
	if cfg.Resolver.PageLimit == 0 {
		cfg.Resolver.PageLimit = 10
	}
	if cfg.Resolver.APIListLimit == 0 {
		cfg.Resolver.APIListLimit = 5
	}
	if cfg.Resolver.APISpecLimit == 0 {
		cfg.Resolver.APISpecLimit = 5
	}
	if cfg.Resolver.DiagramLimit == 0 {
		cfg.Resolver.DiagramLimit = 5
	}
	if cfg.Resolver.RelatedLimit == 0 {
		cfg.Resolver.RelatedLimit = 3
	}
	if cfg.Resolver.KeywordWeight == 0 && cfg.Resolver.SemanticWeight == 0 {
		cfg.Resolver.KeywordWeight = 0.5
		cfg.Resolver.SemanticWeight = 0.5
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 12 * time.Hour
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = 10 * time.Minute
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".xlsx", ".puml"}
	}
}
