package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Cluster is one event: a group of areas sold together under a slug.
type Cluster struct {
	bun.BaseModel `bun:"table:clusters"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	ClusterName string    `bun:"cluster_name,notnull" json:"cluster_name"`
	Slug        string    `bun:"slug,notnull,unique" json:"slug"`
	StartDate   time.Time `bun:"start_date,nullzero" json:"start_date,omitempty"`
	EndDate     time.Time `bun:"end_date,nullzero" json:"end_date,omitempty"`
	CreatedAt   time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Area is a priced inventory pool within a cluster (e.g. "VIP").
// ServicePct is the service-fee percentage applied after discounts.
type Area struct {
	bun.BaseModel `bun:"table:areas"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	ClusterID  int64     `bun:"cluster_id,notnull" json:"cluster_id"`
	AreaName   string    `bun:"area_name,notnull" json:"area_name"`
	Price      float64   `bun:"price,notnull" json:"price"`
	Currency   string    `bun:"currency,notnull,default:'COP'" json:"currency"`
	Capacity   int       `bun:"capacity,notnull" json:"capacity"`
	ServicePct float64   `bun:"service_pct,nullzero" json:"service_pct,omitempty"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
