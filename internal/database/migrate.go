package database

import (
	"fmt"

	"gorm.io/gorm"

	"anoncart/internal/model"
	"anoncart/pkg/log"
)

// ownerTable a table whose schema is shared between the two identity stores
type ownerTable struct {
	name  string
	model interface{}
}

func ownerTables() []ownerTable {
	return []ownerTable{
		{name: model.AnonCartTable, model: &model.AnonCartItem{}},
		{name: model.UserCartTable, model: &model.UserCartItem{}},
		{name: model.AnonPreferenceTable, model: &model.AnonPreference{}},
		{name: model.UserPreferenceTable, model: &model.UserPreference{}},
	}
}

// AutoMigrate auto migrate database table schema
func AutoMigrate(db *gorm.DB) error {
	log.Info("Starting database migration...")

	models := []interface{}{
		&model.User{},
		&model.Shop{},
		&model.Service{},
		&model.ShopService{},
	}

	for _, m := range models {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", m, err)
		}
		log.Infof("Migrated model: %T", m)
	}

	for _, t := range ownerTables() {
		if err := db.Table(t.name).AutoMigrate(t.model); err != nil {
			return fmt.Errorf("failed to migrate %s: %w", t.name, err)
		}
		log.Infof("Migrated table: %s", t.name)
	}

	log.Info("Database migration completed successfully")
	return nil
}

// CheckTables reports the tables that are missing
func CheckTables(db *gorm.DB) ([]string, error) {
	tables := []string{"users", "shops", "services", "shop_services"}
	for _, t := range ownerTables() {
		tables = append(tables, t.name)
	}

	var missing []string
	for _, table := range tables {
		var count int64
		err := db.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", table).Scan(&count).Error
		if err != nil {
			return nil, fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if count == 0 {
			log.Warnf("Table not found: %s", table)
			missing = append(missing, table)
		}
	}

	return missing, nil
}
