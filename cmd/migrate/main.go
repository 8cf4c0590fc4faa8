package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"ms-reservations/internal/config"
	"ms-reservations/internal/models"
)

// Dev-only schema tool: drops, recreates and optionally seeds the
// schema straight from the bun models. Production deployments use the
// SQL migrations instead.
func main() {
	seed := flag.Bool("seed", false, "insert sample data after creating tables")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	connector := pgdriver.NewConnector(pgdriver.WithDSN(cfg.Database.DSN))
	sqldb := sql.OpenDB(connector)
	defer sqldb.Close()

	if err := sqldb.PingContext(ctx); err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())

	log.Println("dropping tables...")
	dropTables(ctx, db)

	log.Println("creating tables...")
	createTables(ctx, db)

	if *seed {
		log.Println("seeding sample data...")
		seedData(ctx, db)
	}
	log.Println("done")
}

func dropTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.Payment)(nil),
		(*models.TransferLog)(nil),
		(*models.RUnitStatusHistory)(nil),
		(*models.ReservationUnit)(nil),
		(*models.Reservation)(nil),
		(*models.Session)(nil),
		(*models.Profile)(nil),
		(*models.PromotionComboItem)(nil),
		(*models.Promotion)(nil),
		(*models.SaleStageArea)(nil),
		(*models.SaleStage)(nil),
		(*models.Unit)(nil),
		(*models.Area)(nil),
		(*models.Cluster)(nil),
	}
	for _, m := range tables {
		_, _ = db.NewDropTable().Model(m).IfExists().Cascade().Exec(ctx)
	}
}

func createTables(ctx context.Context, db *bun.DB) {
	tables := []interface{}{
		(*models.Cluster)(nil),
		(*models.Area)(nil),
		(*models.Unit)(nil),
		(*models.SaleStage)(nil),
		(*models.SaleStageArea)(nil),
		(*models.Promotion)(nil),
		(*models.PromotionComboItem)(nil),
		(*models.Profile)(nil),
		(*models.Session)(nil),
		(*models.Reservation)(nil),
		(*models.ReservationUnit)(nil),
		(*models.RUnitStatusHistory)(nil),
		(*models.TransferLog)(nil),
		(*models.Payment)(nil),
	}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("failed to create table for %T: %v", m, err)
		}
	}
}

func seedData(ctx context.Context, db *bun.DB) {
	now := time.Now()

	cluster := models.Cluster{
		ClusterName: "Festival de Verano 2026",
		Slug:        "festival-verano-2026",
		StartDate:   now.AddDate(0, 1, 0),
		EndDate:     now.AddDate(0, 1, 3),
		CreatedAt:   now,
	}
	if _, err := db.NewInsert().Model(&cluster).Exec(ctx); err != nil {
		log.Fatalf("seed cluster: %v", err)
	}

	area := models.Area{
		ClusterID:  cluster.ID,
		AreaName:   "VIP",
		Price:      100000,
		Currency:   "COP",
		Capacity:   50,
		ServicePct: 10,
		CreatedAt:  now,
	}
	if _, err := db.NewInsert().Model(&area).Exec(ctx); err != nil {
		log.Fatalf("seed area: %v", err)
	}

	units := make([]models.Unit, 0, 20)
	for i := 1; i <= 20; i++ {
		units = append(units, models.Unit{
			AreaID:     area.ID,
			Status:     models.UnitAvailable,
			RowLetter:  "A",
			SeatNumber: i,
			CreatedAt:  now,
		})
	}
	if _, err := db.NewInsert().Model(&units).Exec(ctx); err != nil {
		log.Fatalf("seed units: %v", err)
	}

	stage := models.SaleStage{
		ID:                uuid.NewString(),
		StageName:         "Early Bird",
		AdjustmentType:    models.AdjustPercentage,
		AdjustmentValue:   -20,
		QuantityAvailable: 10,
		StartTime:         now.AddDate(0, 0, -1),
		IsActive:          true,
		PriorityOrder:     1,
		CreatedAt:         now,
	}
	if _, err := db.NewInsert().Model(&stage).Exec(ctx); err != nil {
		log.Fatalf("seed stage: %v", err)
	}
	link := models.SaleStageArea{SaleStageID: stage.ID, AreaID: area.ID, Quantity: 1}
	if _, err := db.NewInsert().Model(&link).Exec(ctx); err != nil {
		log.Fatalf("seed stage area: %v", err)
	}

	promo := models.Promotion{
		ID:            uuid.NewString(),
		PromotionName: "Launch discount",
		PromotionCode: "LANZAMIENTO",
		DiscountType:  models.AdjustFixed,
		DiscountValue: 10000,
		MinQuantity:   1,
		StartTime:     now.AddDate(0, 0, -1),
		IsActive:      true,
		CreatedAt:     now,
	}
	if _, err := db.NewInsert().Model(&promo).Exec(ctx); err != nil {
		log.Fatalf("seed promotion: %v", err)
	}

	profile := models.Profile{
		ID:        uuid.NewString(),
		Email:     "prueba@example.com",
		Name:      "Cuenta de prueba",
		CreatedAt: now,
	}
	if _, err := db.NewInsert().Model(&profile).Exec(ctx); err != nil {
		log.Fatalf("seed profile: %v", err)
	}
}
