package listing

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// ContactInfo is stored as a single JSON column and decoded exactly once here.
// A NULL or empty column decodes to the zero value
type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
	Address string `json:"address,omitempty"`
}

func (c *ContactInfo) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		if s, ok := value.(string); ok {
			bytes = []byte(s)
		} else if value == nil {
			*c = ContactInfo{}
			return nil
		} else {
			return fmt.Errorf("Failed to unmarshal JSON value: %v", value)
		}
	}
	if len(bytes) == 0 {
		*c = ContactInfo{}
		return nil
	}
	return json.Unmarshal(bytes, c)
}

func (c ContactInfo) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (ContactInfo) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "sqlite":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}

// StringList is a JSON-encoded list column (features, image URLs)
type StringList []string

func (s *StringList) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		if str, ok := value.(string); ok {
			bytes = []byte(str)
		} else if value == nil {
			*s = StringList{}
			return nil
		} else {
			return fmt.Errorf("Failed to unmarshal JSON value: %v", value)
		}
	}
	if len(bytes) == 0 {
		*s = StringList{}
		return nil
	}
	return json.Unmarshal(bytes, s)
}

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		s = StringList{}
	}
	return json.Marshal(s)
}

func (StringList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "sqlite":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
