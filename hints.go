package pysandbox

import (
	"regexp"
	"strings"
)

// attachHint fills in SandboxError.Hint from the classified Python
// exception, mirroring the nudge generation the teacher library built for
// Jupyter traceback display. The hint is cosmetic: callers that only care
// about Kind can ignore it entirely.
func attachHint(se *SandboxError, pyType, pyMessage string) {
	if se == nil {
		return
	}
	se.Hint = errorHint(pyType, pyMessage)
}

// errorHint generates a short, human-readable suggestion from a Python
// exception type and message. Returns "" when no specific hint applies.
func errorHint(errorType, errorValue string) string {
	switch errorType {
	case "NameError":
		return nameErrorHint(errorValue)
	case "ModuleNotFoundError", "ImportError":
		return importErrorHint(errorValue)
	case "SyntaxError", "IndentationError":
		return syntaxErrorHint(errorType, errorValue)
	case "ZeroDivisionError":
		return "check that the divisor is not zero"
	case "TypeError":
		return typeErrorHint(errorValue)
	case "AttributeError":
		return attributeErrorHint(errorValue)
	case "KeyError":
		return "verify the key exists in the dictionary"
	case "IndexError":
		return "check the list/array index is within bounds"
	case "ValueError":
		return "check the value is appropriate for the operation"
	default:
		return ""
	}
}

var nameErrorRe = regexp.MustCompile(`name '(\w+)' is not defined`)

// commonVarTypos are typos seen often enough in practice to call out by name.
var commonVarTypos = map[string]string{
	"ressults": "results",
	"reults":   "results",
	"lenght":   "length",
	"widht":    "width",
	"heigth":   "height",
	"calulate": "calculate",
}

func nameErrorHint(errorValue string) string {
	matches := nameErrorRe.FindStringSubmatch(errorValue)
	if len(matches) <= 1 {
		return "check for undefined variables or typos in variable names"
	}
	varName := matches[1]
	if suggestion, ok := commonVarTypos[varName]; ok {
		return "did you mean '" + suggestion + "'?"
	}
	return "variable '" + varName + "' is not defined; check for typos or ensure it's defined before use"
}

var moduleNotFoundRe = regexp.MustCompile(`No module named '(\w+)'`)

// commonModuleHints maps a module name to a more specific install hint, used
// when the plain "not installed" message would be less helpful.
var commonModuleHints = map[string]string{
	"sklearn": "scikit-learn (the package name differs from the import name)",
}

func importErrorHint(errorValue string) string {
	if !strings.Contains(errorValue, "No module named") {
		return "check the module name and ensure it's installed"
	}
	matches := moduleNotFoundRe.FindStringSubmatch(errorValue)
	if len(matches) <= 1 {
		return "check the module name and ensure it's installed"
	}
	moduleName := matches[1]
	if hint, ok := commonModuleHints[moduleName]; ok {
		return "did you mean: " + hint
	}
	return "module '" + moduleName + "' is not installed, not permitted by the import policy, or misspelled"
}

func syntaxErrorHint(errorType, errorValue string) string {
	if errorType == "IndentationError" {
		switch {
		case strings.Contains(errorValue, "unindent does not match"):
			return "check indentation levels - all lines in a block must be indented consistently"
		case strings.Contains(errorValue, "expected an indented block"):
			return "add indentation after colons (if, for, def, etc.)"
		default:
			return "fix the indentation - Python requires consistent use of spaces or tabs"
		}
	}
	if strings.Contains(errorValue, "invalid syntax") {
		return "check for missing colons, parentheses, or quotes"
	}
	return "review the syntax at the indicated line"
}

func typeErrorHint(errorValue string) string {
	switch {
	case strings.Contains(errorValue, "can only concatenate"):
		return "convert values to the same type before concatenating (e.g., str() or int())"
	case strings.Contains(errorValue, "unsupported operand type"):
		return "check that operands are of compatible types for the operation"
	case strings.Contains(errorValue, "not callable"):
		return "this object is not a function - remove the parentheses or check the variable name"
	default:
		return "verify all values are of the expected type"
	}
}

var attributeErrorRe = regexp.MustCompile(`has no attribute '(\w+)'`)

func attributeErrorHint(errorValue string) string {
	matches := attributeErrorRe.FindStringSubmatch(errorValue)
	if len(matches) <= 1 {
		return "check that the attribute or method exists on this object type"
	}
	return "attribute '" + matches[1] + "' does not exist on this object; check the object type and available methods"
}
