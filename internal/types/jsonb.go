package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringMap is a Postgres jsonb column of string→string pairs, used for
// ProviderConfig.RequestHeaders. Backed by map[string]string and works with
// sqlx / database/sql.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (m *StringMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("StringMap: expected []byte, got %T", value)
	}

	if len(b) == 0 {
		*m = nil
		return nil
	}

	return json.Unmarshal(b, m)
}

// AnyMap is a Postgres jsonb column of arbitrary extra fields, used for
// ProviderConfig.Metadata (merged into the outbound vendor request body).
type AnyMap map[string]any

func (m AnyMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (m *AnyMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("AnyMap: expected []byte, got %T", value)
	}

	if len(b) == 0 {
		*m = nil
		return nil
	}

	return json.Unmarshal(b, m)
}
