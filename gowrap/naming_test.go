package gowrap

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoPackageToPackage(t *testing.T) {
	tests := []struct {
		importPath string
		expected   string
	}{
		{"strings", "go.strings"},
		{"encoding/json", "go.json"},
		{"net/http/httptest", "go.httptest"},
		{"github.com/acme/go-geo", "go.go_geo"},
		{"gopkg.in/yaml.v3", "go.yaml_v3"},
		{"", "go"},
	}
	for _, tt := range tests {
		t.Run(tt.importPath, func(t *testing.T) {
			assert.Equal(t, tt.expected, GoPackageToPackage(tt.importPath))
		})
	}
}

func TestGoNameToSelector(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"GetName", "getName"},
		{"Move", "move"},
		{"URL", "url"},
		{"ID", "id"},
		{"HTTPServer", "httpServer"},
		{"ReadAll", "readAll"},
		{"already", "already"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, GoNameToSelector(tt.name), tt.name)
	}
}

func TestGoTypeToClassName(t *testing.T) {
	assert.Equal(t, "go.gowrap.Point", GoTypeToClassName(reflect.TypeOf(&Point{})))
	assert.Equal(t, "go.gowrap.Point$Value", GoTypeToClassName(reflect.TypeOf(Point{})))
	assert.Equal(t, "go.time.Duration", GoTypeToClassName(reflect.TypeOf(time.Second)))
	assert.Empty(t, GoTypeToClassName(reflect.TypeOf([]int{})))
	assert.Empty(t, GoTypeToClassName(reflect.TypeOf(&struct{ A int }{})))
}
