package prompt

import (
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAMLMapping 는 프롬프트 YAML 파일을 평면 문자열 맵으로 로드한다.
func LoadYAMLMapping(fsys fs.FS, filePath string) (map[string]string, error) {
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse prompt yaml: %w", err)
	}

	mapping := make(map[string]string, len(raw))
	for key, value := range raw {
		if value == nil {
			mapping[key] = ""
			continue
		}
		mapping[key] = strings.TrimRight(fmt.Sprint(value), "\n")
	}

	if system := mapping["system"]; strings.TrimSpace(system) != "" {
		if err := ValidateSystemStatic(filePath, system); err != nil {
			return nil, err
		}
	}
	return mapping, nil
}

// LoadYAMLDir 는 디렉터리의 *.yml, *.yaml 을 파일명(확장자 제외) 기준으로 로드한다.
func LoadYAMLDir(fsys fs.FS, dir string) (map[string]map[string]string, error) {
	var paths []string
	for _, pattern := range []string{"*.yml", "*.yaml"} {
		matched, err := fs.Glob(fsys, path.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob prompt dir: %w", err)
		}
		paths = append(paths, matched...)
	}

	prompts := make(map[string]map[string]string, len(paths))
	for _, filePath := range paths {
		name := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
		mapping, err := LoadYAMLMapping(fsys, filePath)
		if err != nil {
			return nil, err
		}
		prompts[name] = mapping
	}
	return prompts, nil
}
