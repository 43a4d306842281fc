package vars

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
)

const dotEnvDefaultName = "default"

// IsDotEnvPath reports whether a path intentionally looks like a dotenv
// file, so other environment formats are never mistaken for one.
func IsDotEnvPath(path string) bool {
	base := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(base, ".json") || strings.HasSuffix(base, ".yaml") ||
		strings.HasSuffix(base, ".yml") {
		return false
	}
	return base == ".env" || strings.HasPrefix(base, ".env.") ||
		strings.HasSuffix(base, ".env")
}

// LoadDotEnv reads one dotenv file into a named environment. The name
// comes from the filename (".env.staging" -> "staging").
func LoadDotEnv(path string) (env reqmodel.Environment, err error) {
	f, err := os.Open(path)
	if err != nil {
		return reqmodel.Environment{}, errdef.Wrap(errdef.CodeFilesystem, err, "open env file %s", path)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeFilesystem, closeErr, "close env file %s", path)
		}
	}()

	values, err := parseDotEnv(f)
	if err != nil {
		return reqmodel.Environment{}, errdef.Wrap(errdef.CodeParse, err, "parse env file %s", path)
	}
	return reqmodel.Environment{Name: dotEnvName(path), Variables: values}, nil
}

func parseDotEnv(r io.Reader) (map[string]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	values := make(map[string]string)
	lineNo := 0
	// lines are processed top to bottom so ${ref} interpolation only
	// sees keys defined above it
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "export "); ok {
			line = strings.TrimSpace(rest)
		}

		key, raw, found := strings.Cut(line, "=")
		if !found {
			return nil, errdef.New(errdef.CodeParse, "line %d: expected KEY=value", lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, errdef.New(errdef.CodeParse, "line %d: missing key", lineNo)
		}

		value, literal, err := parseDotEnvValue(strings.TrimSpace(raw), lineNo)
		if err != nil {
			return nil, err
		}
		if !literal {
			// single-quoted values stay literal so '${TOKEN}' never
			// expands behind the user's back
			value, err = interpolateDotEnv(value, values, lineNo)
			if err != nil {
				return nil, err
			}
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read env file")
	}
	return values, nil
}

func parseDotEnvValue(raw string, lineNo int) (value string, literal bool, err error) {
	if raw == "" {
		return "", false, nil
	}
	switch raw[0] {
	case '\'':
		v, err := unquoteDotEnv(raw, '\'', lineNo)
		return v, true, err
	case '"':
		v, err := unquoteDotEnv(raw, '"', lineNo)
		return v, false, err
	default:
		return trimInlineComment(raw), false, nil
	}
}

func unquoteDotEnv(raw string, quote byte, lineNo int) (string, error) {
	var b strings.Builder
	for i := 1; i < len(raw); i++ {
		ch := raw[i]
		if ch == '\\' && quote == '"' {
			if i+1 >= len(raw) {
				return "", errdef.New(errdef.CodeParse, "line %d: unfinished escape", lineNo)
			}
			i++
			b.WriteByte(unescapeDotEnv(raw[i]))
			continue
		}
		if ch == quote {
			trailer := strings.TrimSpace(raw[i+1:])
			if trailer != "" && trailer[0] != '#' && trailer[0] != ';' {
				return "", errdef.New(errdef.CodeParse, "line %d: unexpected content after quoted value", lineNo)
			}
			return b.String(), nil
		}
		b.WriteByte(ch)
	}
	return "", errdef.New(errdef.CodeParse, "line %d: unterminated quoted value", lineNo)
}

func unescapeDotEnv(ch byte) byte {
	switch ch {
	case 'n':
		return '\n'
	case 'r':
		return '\r'
	case 't':
		return '\t'
	default:
		return ch
	}
}

func trimInlineComment(value string) string {
	for i := 1; i < len(value); i++ {
		if (value[i] == '#' || value[i] == ';') && (value[i-1] == ' ' || value[i-1] == '\t') {
			return strings.TrimSpace(value[:i])
		}
	}
	return strings.TrimSpace(value)
}

// interpolateDotEnv expands $NAME and ${NAME} references against keys
// already parsed, falling back to the OS environment so secrets can be
// injected at launch time instead of living in the file.
func interpolateDotEnv(value string, resolved map[string]string, lineNo int) (string, error) {
	if !strings.Contains(value, "$") {
		return value, nil
	}
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch == '\\' && i+1 < len(value) && value[i+1] == '$' {
			b.WriteByte('$')
			i++
			continue
		}
		if ch != '$' || i+1 >= len(value) {
			b.WriteByte(ch)
			continue
		}
		var name string
		if value[i+1] == '{' {
			end := strings.IndexByte(value[i+2:], '}')
			if end < 0 {
				return "", errdef.New(errdef.CodeParse, "line %d: missing closing brace for ${", lineNo)
			}
			name = strings.TrimSpace(value[i+2 : i+2+end])
			i = i + 2 + end
		} else {
			j := i + 1
			for j < len(value) && isDotEnvNameChar(value[j]) {
				j++
			}
			if j == i+1 {
				b.WriteByte(ch)
				continue
			}
			name = value[i+1 : j]
			i = j - 1
		}
		if name == "" {
			return "", errdef.New(errdef.CodeParse, "line %d: empty variable reference", lineNo)
		}
		replacement, ok := resolved[name]
		if !ok {
			replacement, ok = os.LookupEnv(name)
		}
		if !ok {
			return "", errdef.New(errdef.CodeParse, "line %d: variable %q is not defined", lineNo, name)
		}
		b.WriteString(replacement)
	}
	return b.String(), nil
}

func isDotEnvNameChar(ch byte) bool {
	return ch == '_' ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9')
}

func dotEnvName(path string) string {
	base := filepath.Base(path)
	lower := strings.ToLower(base)
	switch {
	case lower == ".env":
		return dotEnvDefaultName
	case strings.HasPrefix(lower, ".env.") && len(base) > len(".env."):
		return base[len(".env."):]
	case strings.HasSuffix(lower, ".env") && len(base) > len(".env"):
		return base[:len(base)-len(".env")]
	}
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" {
		return dotEnvDefaultName
	}
	return stem
}
