package preferences

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const bulkInsertBatchSize = 100

// ParseBulkPayload decodes the JSON array of {preference1, preference2}
// objects submitted by the admin import form.
func ParseBulkPayload(raw string) ([]PreferencePair, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, validationErrorf("import payload is required")
	}
	if !strings.HasPrefix(trimmed, "[") {
		return nil, validationErrorf("import payload must be a JSON array")
	}
	var entries []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil, validationErrorf("import payload is not valid JSON: %v", err)
	}
	pairs := make([]PreferencePair, 0, len(entries))
	for index, entry := range entries {
		var pair PreferencePair
		if !bytes.HasPrefix(bytes.TrimSpace(entry), []byte("{")) || json.Unmarshal(entry, &pair) != nil {
			return nil, validationErrorf("entry %d: must be an object with string preference1 and preference2", index+1)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// BulkCreatePreferences validates every entry before writing any of them and
// then inserts the whole batch in one transaction. It reports the number of
// preferences imported.
func (service *Service) BulkCreatePreferences(ctx context.Context, categoryID uint, pairs []PreferencePair) (int, error) {
	if err := service.ready(opBulkCreatePreferences); err != nil {
		return 0, err
	}

	rows := make([]Preference, 0, len(pairs))
	for index, pair := range pairs {
		normalized, err := normalizePair(pair)
		if err != nil {
			return 0, service.invalid(opBulkCreatePreferences, validationErrorf("entry %d: %s", index+1, Message(err)))
		}
		rows = append(rows, Preference{
			CategoryID:  categoryID,
			Preference1: normalized.Preference1,
			Preference2: normalized.Preference2,
		})
	}

	txErr := service.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := service.findCategory(tx, opBulkCreatePreferences, categoryID); err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, bulkInsertBatchSize).Error; err != nil {
			return service.failed(opBulkCreatePreferences, reasonInsertFailed, err,
				zap.Uint("category_id", categoryID),
				zap.Int("entries", len(rows)))
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}

	service.loggerOrDefault().Info("preferences imported",
		zap.Uint("category_id", categoryID),
		zap.Int("imported", len(rows)))
	return len(rows), nil
}
