package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/contextbrain/internal/data/repos"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

type Repos struct {
	Nodes    repos.KnowledgeNodeRepo
	Edges    repos.KnowledgeEdgeRepo
	Aliases  repos.KnowledgeAliasRepo
	Taxonomy repos.TaxonomyRepo
	Episodes repos.EpisodeRepo
	Facts    repos.UserFactRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Nodes:    repos.NewKnowledgeNodeRepo(db, log),
		Edges:    repos.NewKnowledgeEdgeRepo(db, log),
		Aliases:  repos.NewKnowledgeAliasRepo(db, log),
		Taxonomy: repos.NewTaxonomyRepo(db, log),
		Episodes: repos.NewEpisodeRepo(db, log),
		Facts:    repos.NewUserFactRepo(db, log),
	}
}
