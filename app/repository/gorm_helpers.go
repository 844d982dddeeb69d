package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// translateError maps gorm errors onto the repository sentinels.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), isDuplicateMessage(err):
		return errors.Join(ErrDuplicate, err)
	}
	return err
}

// isDuplicateMessage catches unique violations from drivers opened without
// TranslateError.
func isDuplicateMessage(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") || strings.Contains(msg, "UNIQUE constraint failed")
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.New().String()
	}
}

func exists(db *gorm.DB, model interface{}, id string) (bool, error) {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
