package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// IconKind tells which variant an Icon holds.
type IconKind int

const (
	IconDefault IconKind = iota
	IconResource
	IconCustom
)

const (
	iconTypeDefault  = "Default"
	iconTypeResource = "Resource"
	iconTypeCustom   = "Custom"
)

// Icon is a cosmetic task picture: the default one, a bundled resource, or a user URI.
type Icon struct {
	Kind       IconKind
	ResourceID int
	URI        string
}

func DefaultIcon() Icon { return Icon{Kind: IconDefault} }

func ResourceIcon(id int) Icon { return Icon{Kind: IconResource, ResourceID: id} }

func CustomIcon(uri string) Icon { return Icon{Kind: IconCustom, URI: uri} }

func (i Icon) String() string {
	switch i.Kind {
	case IconResource:
		return iconTypeResource + ":" + strconv.Itoa(i.ResourceID)
	case IconCustom:
		return iconTypeCustom + ":" + i.URI
	default:
		return iconTypeDefault
	}
}

// ParseIcon never fails: anything it cannot read becomes the default icon.
func ParseIcon(s string) Icon {
	switch {
	case strings.HasPrefix(s, iconTypeResource+":"):
		id, err := strconv.Atoi(strings.TrimPrefix(s, iconTypeResource+":"))
		if err != nil {
			return DefaultIcon()
		}
		return ResourceIcon(id)
	case strings.HasPrefix(s, iconTypeCustom+":"):
		return CustomIcon(strings.TrimPrefix(s, iconTypeCustom+":"))
	default:
		return DefaultIcon()
	}
}

func (i Icon) Value() (driver.Value, error) {
	return i.String(), nil
}

func (i *Icon) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*i = DefaultIcon()
	case string:
		*i = ParseIcon(v)
	case []byte:
		*i = ParseIcon(string(v))
	default:
		return fmt.Errorf("scan icon: unsupported type %T", value)
	}
	return nil
}
