package db

import (
	"context"
	"time"

	"github.com/uptrace/bun"

	"ms-reservations/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func (d *DB) ProfileByEmail(email string) (*models.Profile, error) {
	profile := new(models.Profile)
	err := d.Bun.NewSelect().
		Model(profile).
		Where("LOWER(email) = LOWER(?)", email).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return profile, nil
}

func (d *DB) InsertProfile(p *models.Profile) error {
	_, err := d.Bun.NewInsert().Model(p).Exec(context.Background())
	return err
}

func (d *DB) InsertSession(s *models.Session) error {
	_, err := d.Bun.NewInsert().Model(s).Exec(context.Background())
	return err
}

func (d *DB) DeleteSession(id string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Session)(nil)).
		Where("id = ?", id).
		Exec(context.Background())
	return err
}

// PurgeExpired drops sessions past their expiry; the sweeper calls this
// on its slowest cadence.
func (d *DB) PurgeExpired(now time.Time) (int64, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.Session)(nil)).
		Where("expires_at <= ?", now).
		Exec(context.Background())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
