package workspace

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// Language identifies a source language known to polyrun.
type Language string

const (
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangCSharp     Language = "csharp"
	LangHTML       Language = "html"
	LangCSS        Language = "css"
	LangJSON       Language = "json"
	LangText       Language = "text"
	LangUnknown    Language = ""
)

// extensions maps file extensions to languages.
var extensions = map[string]Language{
	".py":   LangPython,
	".js":   LangJavaScript,
	".cs":   LangCSharp,
	".html": LangHTML,
	".htm":  LangHTML,
	".css":  LangCSS,
	".json": LangJSON,
	".txt":  LangText,
}

// aliases accepts the spellings users commonly type on the command line.
var aliases = map[string]Language{
	"python":     LangPython,
	"py":         LangPython,
	"python3":    LangPython,
	"javascript": LangJavaScript,
	"js":         LangJavaScript,
	"node":       LangJavaScript,
	"csharp":     LangCSharp,
	"cs":         LangCSharp,
	"c#":         LangCSharp,
	"dotnet":     LangCSharp,
	"html":       LangHTML,
	"htm":        LangHTML,
	"css":        LangCSS,
	"json":       LangJSON,
	"text":       LangText,
	"txt":        LangText,
}

// ParseLanguage normalizes a user supplied language name. Unknown names are
// returned lowercased so callers can still report them.
func ParseLanguage(name string) Language {
	n := strings.ToLower(strings.TrimSpace(name))
	if lang, ok := aliases[n]; ok {
		return lang
	}
	return Language(n)
}

// DisplayName returns the human readable name of a language.
func (l Language) DisplayName() string {
	switch l {
	case LangPython:
		return "Python"
	case LangJavaScript:
		return "JavaScript"
	case LangCSharp:
		return "C#"
	case LangHTML:
		return "HTML"
	case LangCSS:
		return "CSS"
	case LangJSON:
		return "JSON"
	case LangText:
		return "Text"
	default:
		return string(l)
	}
}

// Extension returns the canonical file extension for a language.
func (l Language) Extension() string {
	switch l {
	case LangPython:
		return ".py"
	case LangJavaScript:
		return ".js"
	case LangCSharp:
		return ".cs"
	case LangHTML, LangCSS:
		return ".html"
	case LangJSON:
		return ".json"
	case LangText:
		return ".txt"
	default:
		return ""
	}
}

// LanguageFromPath detects the language from a file extension.
func LanguageFromPath(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	return extensions[ext]
}

// LanguageFromContent guesses the language of a buffer with no usable extension.
func LanguageFromContent(content string) Language {
	lower := strings.ToLower(strings.TrimSpace(content))
	if lower == "" {
		return LangText
	}

	if strings.HasPrefix(lower, "#!") {
		firstLine, _, _ := strings.Cut(lower, "\n")
		if strings.Contains(firstLine, "python") {
			return LangPython
		}
		if strings.Contains(firstLine, "node") || strings.Contains(firstLine, "javascript") {
			return LangJavaScript
		}
	}

	if strings.HasPrefix(lower, "<!doctype") || strings.HasPrefix(lower, "<html") {
		return LangHTML
	}

	if strings.HasPrefix(lower, "{") || strings.HasPrefix(lower, "[") {
		if json.Valid([]byte(content)) {
			return LangJSON
		}
	}

	if containsAny(lower, "{", ":", ";") && containsAny(lower, "color", "background", "margin", "padding") &&
		!containsAny(lower, "function ", "def ", "class ", "using ") {
		return LangCSS
	}

	// C# programs often declare locals with var, which would read as JavaScript.
	if containsAny(lower, "using system", "namespace ", "static void main", "console.writeline") {
		return LangCSharp
	}

	if containsAny(lower, "def ", "import ", "from ", "if __name__", "print(") {
		return LangPython
	}

	if containsAny(lower, "function ", "var ", "let ", "const ", "console.log") {
		return LangJavaScript
	}

	if containsAny(lower, "using ", "namespace ", "class ", "public ", "private ") {
		return LangCSharp
	}

	return LangText
}

// Classify prefers the file extension and falls back to content heuristics.
func Classify(path, content string) Language {
	if lang := LanguageFromPath(path); lang != LangUnknown && lang != LangText {
		return lang
	}
	return LanguageFromContent(content)
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// Runtime identifies the toolchain a command belongs to.
type Runtime string

const (
	RuntimePython  Runtime = "python"
	RuntimeNode    Runtime = "node"
	RuntimeDotnet  Runtime = "dotnet"
	RuntimeUnknown Runtime = "unknown"
)

// DetectRuntime maps an executable name or path to its toolchain.
func DetectRuntime(command string) Runtime {
	base := strings.ToLower(filepath.Base(command))
	base = strings.TrimSuffix(base, ".exe")
	switch {
	case strings.HasPrefix(base, "python"):
		return RuntimePython
	case base == "node" || base == "nodejs":
		return RuntimeNode
	case base == "dotnet":
		return RuntimeDotnet
	default:
		return RuntimeUnknown
	}
}
