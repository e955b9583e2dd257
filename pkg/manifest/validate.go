package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/iot-launcher/pkg/privilege"
)

// knownPrivileges is the set of privilege names the launcher recognises;
// anything else flags InvalidPrivilege but does not block loading.
var knownPrivileges = map[string]bool{
	privilege.ListApps:  true,
	privilege.StopApp:   true,
	privilege.SendEvent: true,
}

// Validate parses raw manifest bytes — either a single JSON object or an
// array of objects (a multi-application package) — and checks every
// recognised field. declaredPkg is the package name derived from the
// manifest's filename (foo.manifest -> "foo"); in single-app form the
// application field must equal it, or the result is flagged Misnamed.
func Validate(raw []byte, declaredPkg string) (Status, []Application, error) {
	var status Status

	trimmed := strings.TrimSpace(string(raw))
	var rawApps []rawApplication
	switch {
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(raw, &rawApps); err != nil {
			return Malformed, nil, fmt.Errorf("manifest: parse array: %w", err)
		}
	case strings.HasPrefix(trimmed, "{"):
		var one rawApplication
		if err := json.Unmarshal(raw, &one); err != nil {
			return Malformed, nil, fmt.Errorf("manifest: parse object: %w", err)
		}
		rawApps = []rawApplication{one}
		if one.Application != "" && one.Application != declaredPkg {
			status |= Misnamed
		}
	default:
		return Malformed, nil, fmt.Errorf("manifest: not a JSON object or array")
	}

	if len(rawApps) == 0 {
		return Malformed, nil, fmt.Errorf("manifest: no applications declared")
	}

	seen := make(map[string]bool, len(rawApps))
	apps := make([]Application, 0, len(rawApps))
	for _, ra := range rawApps {
		app, s := validateApplication(ra)
		status |= s
		if app.Name == "" {
			status |= MissingField
			continue
		}
		if seen[app.Name] {
			status |= Malformed
			continue
		}
		seen[app.Name] = true
		apps = append(apps, app)
	}

	return status, apps, nil
}

func validateApplication(ra rawApplication) (Application, Status) {
	var status Status

	if ra.Application == "" {
		status |= MissingField
	}
	if len(ra.Execute) == 0 {
		status |= MissingField
	}

	for _, p := range ra.Privileges {
		if !knownPrivileges[p] {
			status |= InvalidPrivilege
		}
	}

	if len(ra.Execute) > 0 {
		status |= validateBinary(ra.Execute[0])
	}

	if ra.Desktop != "" {
		status |= validateDesktop(ra.Desktop)
	}

	fileTypes := make(map[PathType][]string, len(ra.FileTypes))
	for key, patterns := range ra.FileTypes {
		pt, ok := validFileTypeKey(key)
		if !ok {
			status |= InvalidField
			continue
		}
		fileTypes[pt] = patterns
	}

	return Application{
		Name:        ra.Application,
		Description: ra.Description,
		Privileges:  ra.Privileges,
		Execute:     ra.Execute,
		Desktop:     ra.Desktop,
		FileTypes:   fileTypes,
	}, status
}

func validFileTypeKey(key string) (PathType, bool) {
	for _, k := range knownFileTypeKeys {
		if string(k) == key {
			return k, true
		}
	}
	return "", false
}

// validateBinary stats path, matching the original source's tolerance for
// EACCES (the launcher may not be able to stat a binary it doesn't own,
// which isn't by itself a reason to reject the manifest).
func validateBinary(path string) Status {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsPermission(err) {
			return 0
		}
		return InvalidBinary
	}
	if !fi.Mode().IsRegular() || fi.Mode()&0111 == 0 {
		return InvalidBinary
	}
	return 0
}

func validateDesktop(path string) Status {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsPermission(err) {
			return 0
		}
		return InvalidDesktop
	}
	if !fi.Mode().IsRegular() {
		return InvalidDesktop
	}
	return 0
}

// packageNameFromFilename derives the package name a manifest's filename
// declares: foo.manifest -> "foo".
func packageNameFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
