package db

import (
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/yungbote/contextbrain/internal/domain"
)

// OpenTest returns an in-memory sqlite database with the non-vector
// tables migrated. Vector and tsvector columns are postgres-only, so
// tests that need candidate queries fake the store instead.
func OpenTest(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := gdb.AutoMigrate(
		&domain.KnowledgeEdge{},
		&domain.KnowledgeAlias{},
		&domain.TaxonomyNode{},
		&domain.ConversationEpisode{},
		&domain.UserFact{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return gdb
}
