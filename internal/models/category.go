package models

// Category is the garment classification label used as the sharding key for
// prompt lineages. The set is open at the storage level; the classifier only
// ever emits one of the known labels below.
type Category string

const (
	CategoryDefault   Category = "default"
	CategoryTop       Category = "top"
	CategoryBottom    Category = "bottom"
	CategoryDress     Category = "dress"
	CategoryOuterwear Category = "outerwear"
	CategorySwimwear  Category = "swimwear"
	CategoryUnderwear Category = "underwear"
	CategoryAccessory Category = "accessory"
	CategoryShoes     Category = "shoes"
)

// KnownCategories lists every label the classifier may return.
var KnownCategories = []Category{
	CategoryTop,
	CategoryBottom,
	CategoryDress,
	CategoryOuterwear,
	CategorySwimwear,
	CategoryUnderwear,
	CategoryAccessory,
	CategoryShoes,
}

func (c Category) Valid() bool {
	for _, k := range KnownCategories {
		if c == k {
			return true
		}
	}
	return c == CategoryDefault
}
