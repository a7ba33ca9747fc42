package database

import "recipebox/internal/models"

// PersistentModels lists the models AutoMigrate manages, parents first.
func PersistentModels() []interface{} {
	return []interface{}{&models.User{}, &models.Recipe{}, &models.Review{}}
}
