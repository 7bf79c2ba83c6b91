package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DoyleJ11/hexfog-backend/internal/engine"
	"github.com/DoyleJ11/hexfog-backend/internal/fog"
	"github.com/DoyleJ11/hexfog-backend/internal/hexgrid"
)

type tileRow struct {
	MapID      string `gorm:"primaryKey;size:64"`
	ViewerID   string `gorm:"primaryKey;size:64"`
	Z          int    `gorm:"primaryKey;autoIncrement:false"`
	Q          int    `gorm:"primaryKey;autoIncrement:false"`
	R          int    `gorm:"primaryKey;autoIncrement:false"`
	RevealedAt time.Time
}

func (tileRow) TableName() string { return "revealed_tiles" }

type beaconRow struct {
	RoomID    string `gorm:"primaryKey;size:64"`
	Q         int
	R         int
	Z         int
	Revision  int64
	UpdatedAt time.Time
}

func (beaconRow) TableName() string { return "beacon_positions" }

type roomRow struct {
	ID         string `gorm:"primaryKey;size:64"`
	CampaignID string `gorm:"index;size:64"`
	MapID      string `gorm:"size:64"`
	ActiveZ    int
	CreatedAt  time.Time
}

func (roomRow) TableName() string { return "rooms" }

type layerRow struct {
	MapID       string `gorm:"primaryKey;size:64"`
	Z           int    `gorm:"primaryKey;autoIncrement:false"`
	CampaignID  string `gorm:"index;size:64"`
	Name        string
	ImageURL    string
	ImageWidth  int
	ImageHeight int
	HexSize     float64
	Columns     int
	Rows        int
	Orientation string `gorm:"size:8"`
}

func (layerRow) TableName() string { return "map_layers" }

type membershipRow struct {
	CampaignID string `gorm:"primaryKey;size:64"`
	ViewerID   string `gorm:"primaryKey;size:64"`
	Role       string `gorm:"size:16"`
}

func (membershipRow) TableName() string { return "campaign_memberships" }

// Gorm is a Store on top of any gorm dialect.
type Gorm struct {
	db *gorm.DB
}

// OpenGorm connects with driver "postgres" or "sqlite" and migrates the
// schema.
func OpenGorm(driver, dsn string, log *zap.Logger) (*Gorm, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  newGormLogger(log),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// sqlite allows one writer; a single connection avoids SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&tileRow{}, &beaconRow{}, &roomRow{}, &layerRow{}, &membershipRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Gorm{db: db}, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *Gorm) InTx(ctx context.Context, fn func(tx Store) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
}

func (g *Gorm) InsertTile(ctx context.Context, key fog.Key, c hexgrid.Coord, at time.Time) (bool, error) {
	row := tileRow{MapID: key.MapID, ViewerID: key.ViewerID, Z: key.Z, Q: c.Q, R: c.R, RevealedAt: at}
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (g *Gorm) HasTile(ctx context.Context, key fog.Key, c hexgrid.Coord) (bool, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&tileRow{}).
		Where("map_id = ? AND viewer_id = ? AND z = ? AND q = ? AND r = ?", key.MapID, key.ViewerID, key.Z, c.Q, c.R).
		Count(&n).Error
	return n > 0, err
}

func (g *Gorm) ListTiles(ctx context.Context, key fog.Key) ([]hexgrid.Coord, error) {
	var rows []tileRow
	err := g.db.WithContext(ctx).
		Select("q", "r").
		Where("map_id = ? AND viewer_id = ? AND z = ?", key.MapID, key.ViewerID, key.Z).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]hexgrid.Coord, len(rows))
	for i, r := range rows {
		out[i] = hexgrid.Coord{Q: r.Q, R: r.R}
	}
	return out, nil
}

func (g *Gorm) LoadBeacon(ctx context.Context, roomID string) (engine.Beacon, error) {
	var row beaconRow
	err := g.db.WithContext(ctx).Where("room_id = ?", roomID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Beacon{}, fmt.Errorf("beacon for room %s: %w", roomID, engine.ErrNotFound)
	}
	if err != nil {
		return engine.Beacon{}, err
	}
	return engine.Beacon{
		RoomID:    row.RoomID,
		Q:         row.Q,
		R:         row.R,
		Z:         row.Z,
		Revision:  row.Revision,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (g *Gorm) SaveBeacon(ctx context.Context, b engine.Beacon) error {
	db := g.db.WithContext(ctx)

	if b.Revision == 1 {
		row := beaconRow{RoomID: b.RoomID, Q: b.Q, R: b.R, Z: b.Z, Revision: b.Revision, UpdatedAt: b.UpdatedAt}
		res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("beacon for room %s already exists: %w", b.RoomID, ErrConflict)
		}
		return nil
	}

	res := db.Model(&beaconRow{}).
		Where("room_id = ? AND revision = ?", b.RoomID, b.Revision-1).
		Updates(map[string]any{
			"q":          b.Q,
			"r":          b.R,
			"z":          b.Z,
			"revision":   b.Revision,
			"updated_at": b.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("beacon revision %d for room %s: %w", b.Revision, b.RoomID, ErrConflict)
	}
	return nil
}

func (g *Gorm) CreateRoom(ctx context.Context, room engine.Room) error {
	row := roomRow{ID: room.ID, CampaignID: room.CampaignID, MapID: room.MapID, ActiveZ: room.ActiveZ, CreatedAt: room.CreatedAt}
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("room %s: %w", room.ID, ErrConflict)
	}
	return nil
}

func (g *Gorm) LoadRoom(ctx context.Context, roomID string) (engine.Room, error) {
	var row roomRow
	err := g.db.WithContext(ctx).Where("id = ?", roomID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.Room{}, fmt.Errorf("room %s: %w", roomID, engine.ErrNotFound)
	}
	if err != nil {
		return engine.Room{}, err
	}
	return engine.Room{ID: row.ID, CampaignID: row.CampaignID, MapID: row.MapID, ActiveZ: row.ActiveZ, CreatedAt: row.CreatedAt}, nil
}

func (g *Gorm) SetActiveLayer(ctx context.Context, roomID string, z int) error {
	res := g.db.WithContext(ctx).Model(&roomRow{}).Where("id = ?", roomID).Update("active_z", z)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("room %s: %w", roomID, engine.ErrNotFound)
	}
	return nil
}

func (g *Gorm) CreateLayer(ctx context.Context, l engine.Layer) error {
	row := layerRow{
		MapID:       l.MapID,
		Z:           l.Z,
		CampaignID:  l.CampaignID,
		Name:        l.Name,
		ImageURL:    l.ImageURL,
		ImageWidth:  l.ImageWidth,
		ImageHeight: l.ImageHeight,
		HexSize:     l.HexSize,
		Columns:     l.Columns,
		Rows:        l.Rows,
		Orientation: string(l.Orientation),
	}
	res := g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("layer %d of map %s: %w", l.Z, l.MapID, ErrConflict)
	}
	return nil
}

func (g *Gorm) ListLayers(ctx context.Context, mapID string) ([]engine.Layer, error) {
	var rows []layerRow
	if err := g.db.WithContext(ctx).Where("map_id = ?", mapID).Order("z").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]engine.Layer, len(rows))
	for i, r := range rows {
		out[i] = engine.Layer{
			MapID:       r.MapID,
			Z:           r.Z,
			CampaignID:  r.CampaignID,
			Name:        r.Name,
			ImageURL:    r.ImageURL,
			ImageWidth:  r.ImageWidth,
			ImageHeight: r.ImageHeight,
			HexSize:     r.HexSize,
			Columns:     r.Columns,
			Rows:        r.Rows,
			Orientation: hexgrid.Orientation(r.Orientation),
		}
	}
	return out, nil
}

func (g *Gorm) PutMembership(ctx context.Context, campaignID, viewerID string, role engine.Role) error {
	if !role.Valid() {
		return fmt.Errorf("membership role %q is invalid", role)
	}
	row := membershipRow{CampaignID: campaignID, ViewerID: viewerID, Role: string(role)}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "viewer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(&row).Error
}

func (g *Gorm) IsMember(ctx context.Context, campaignID, viewerID string) (bool, error) {
	role, err := g.Role(ctx, campaignID, viewerID)
	return role != engine.RoleNone, err
}

func (g *Gorm) Role(ctx context.Context, campaignID, viewerID string) (engine.Role, error) {
	var row membershipRow
	err := g.db.WithContext(ctx).
		Where("campaign_id = ? AND viewer_id = ?", campaignID, viewerID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.RoleNone, nil
	}
	if err != nil {
		return engine.RoleNone, err
	}
	return engine.Role(row.Role), nil
}
