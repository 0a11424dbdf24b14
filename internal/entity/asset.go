package entity

// AssetKind selects the assets/ subdirectory for a downloaded resource.
type AssetKind string

const (
	AssetImage  AssetKind = "image"
	AssetScript AssetKind = "script"
	AssetStyle  AssetKind = "style"
	AssetFont   AssetKind = "font"
	AssetMedia  AssetKind = "media"
	AssetOther  AssetKind = "other"
)

// Dir returns the subdirectory under assets/, or "" for the flat fallback.
func (k AssetKind) Dir() string {
	switch k {
	case AssetImage:
		return "images"
	case AssetScript:
		return "scripts"
	case AssetStyle:
		return "styles"
	case AssetFont:
		return "fonts"
	case AssetMedia:
		return "media"
	default:
		return ""
	}
}

// ParseAssetKind is the inverse of the inventory "type" column.
func ParseAssetKind(s string) AssetKind {
	switch AssetKind(s) {
	case AssetImage, AssetScript, AssetStyle, AssetFont, AssetMedia:
		return AssetKind(s)
	default:
		return AssetOther
	}
}

// AssetRecord maps one remote URL to its local path for the current run.
type AssetRecord struct {
	URL       string
	LocalPath string
	Kind      AssetKind
}
