package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeGoFile(t *testing.T, root, rel string, imports ...string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	src := "package p\n\nimport (\n"
	for _, imp := range imports {
		src += "\t_ \"" + imp + "\"\n"
	}
	src += ")\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
}

func TestCollectViolationsFlagsLayerLeaks(t *testing.T) {
	root := t.TempDir()
	const module = "key2key/contexts/marketplace/listing-settlement"

	writeGoFile(t, root, "contexts/marketplace/listing-settlement/domain/entities/listing.go",
		"time", "github.com/shopspring/decimal", "gorm.io/gorm")
	writeGoFile(t, root, "contexts/marketplace/listing-settlement/application/ledger.go",
		module+"/ports", module+"/adapters/memory", "key2key/internal/platform/db")
	writeGoFile(t, root, "contexts/marketplace/listing-settlement/ports/ports.go",
		"github.com/golang/mock/gomock")
	writeGoFile(t, root, "contexts/marketplace/listing-settlement/ports/mocks/ports_mock.go",
		"github.com/golang/mock/gomock")
	writeGoFile(t, root, "contexts/marketplace/listing-settlement/adapters/postgres/repository.go",
		"key2key/internal/shared/outbox", "gorm.io/gorm")
	writeGoFile(t, root, "contracts/gen/events/v1/envelope.go", "encoding/json", "github.com/google/uuid")
	writeGoFile(t, root, "internal/platform/messaging/bus.go", "key2key/internal/app/bootstrap")
	writeGoFile(t, root, "_examples/ignored/main.go", "key2key/internal/app/bootstrap")

	violations, err := collectViolations(root)
	require.NoError(t, err)

	got := map[string][]string{}
	for _, v := range violations {
		got[v.File] = append(got[v.File], v.Rule)
	}
	assert.Equal(t, map[string][]string{
		"contexts/marketplace/listing-settlement/domain/entities/listing.go": {
			"domain import is outside explicit allowlist",
		},
		"contexts/marketplace/listing-settlement/application/ledger.go": {
			"application import is outside explicit allowlist",
			"application must not import adapters",
			"only adapters may reach platform infrastructure",
		},
		"contexts/marketplace/listing-settlement/ports/ports.go": {
			"only generated mocks may import gomock",
		},
		"contracts/gen/events/v1/envelope.go": {
			"contracts must stay dependency free",
		},
		"internal/platform/messaging/bus.go": {
			"platform must not import the composition root",
		},
	}, got)
}

func TestIsStdlib(t *testing.T) {
	assert.True(t, isStdlib("net/http"))
	assert.True(t, isStdlib("context"))
	assert.False(t, isStdlib("github.com/shopspring/decimal"))
	assert.False(t, isStdlib("key2key/contracts/gen/events/v1"))
}
