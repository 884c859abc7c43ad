package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"mediaflow/internal/config"
	"mediaflow/internal/domain/model"
	"mediaflow/internal/domain/ports/repository"
	pg "mediaflow/internal/infra/db/postgres"
	"mediaflow/internal/infra/db/sqlite"
)

// seedFile lists recipients and their distribution accounts. Saving is an
// upsert, so the file can be re-applied after edits.
type seedFile struct {
	Recipients []struct {
		model.Recipient `yaml:",inline"`
		Accounts        []struct {
			ID       string         `yaml:"id"`
			Platform model.Platform `yaml:"platform"`
			Handle   string         `yaml:"handle"`
			Active   *bool          `yaml:"active"`
		} `yaml:"accounts"`
	} `yaml:"recipients"`
}

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	dataPath := flag.String("data", "seed.yaml", "recipients to seed")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	raw, err := os.ReadFile(*dataPath)
	if err != nil {
		log.Fatalf("read seed: %v", err)
	}
	var data seedFile
	if err := yaml.Unmarshal(raw, &data); err != nil {
		log.Fatalf("parse seed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var (
		repo repository.RecipientRepository
		tx   repository.TransactionManager
	)
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.Open(cfg.Database.SQLitePath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		defer db.Close()
		repo, tx = sqlite.NewRecipientRepo(db), sqlite.NewTxManager(db)
	default:
		pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		repo, tx = pg.NewRecipientRepo(pool), pg.NewTxManager(pool)
	}

	accounts := 0
	err = tx.WithTx(ctx, func(ctx context.Context, t repository.Tx) error {
		now := time.Now().UTC()
		for _, r := range data.Recipients {
			rec := r.Recipient
			if strings.TrimSpace(rec.ID) == "" {
				return fmt.Errorf("recipient %q has no id", rec.Name)
			}
			rec.CreatedAt = now
			if err := repo.Save(ctx, t, &rec); err != nil {
				return fmt.Errorf("save recipient %s: %w", rec.ID, err)
			}
			for _, a := range r.Accounts {
				acc := &model.DistributionAccount{
					ID:          a.ID,
					RecipientID: rec.ID,
					Platform:    model.Platform(strings.ToLower(string(a.Platform))),
					Handle:      a.Handle,
					Active:      a.Active == nil || *a.Active,
					CreatedAt:   now,
				}
				if acc.ID == "" {
					acc.ID = rec.ID + "-" + string(acc.Platform)
				}
				if err := repo.SaveAccount(ctx, t, acc); err != nil {
					return fmt.Errorf("save account %s: %w", acc.ID, err)
				}
				accounts++
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	fmt.Printf("seeded %d recipients and %d accounts\n", len(data.Recipients), accounts)
}
