package pipeline

// Dictionary is a curated table of known dish names keyed by their
// normalized surface form.
type Dictionary struct {
	entries map[string]string
}

// NewDictionary builds a dictionary from the given entries.
func NewDictionary(entries map[string]string) *Dictionary {
	copied := make(map[string]string, len(entries))
	for k, v := range entries {
		copied[k] = v
	}
	return &Dictionary{entries: copied}
}

// Lookup returns the translated name for a normalized dish name.
func (d *Dictionary) Lookup(normalized string) (string, bool) {
	v, ok := d.entries[normalized]
	return v, ok
}

// Len returns the number of dictionary entries.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// DefaultDictionary returns the built-in Korean to English dish table.
func DefaultDictionary() *Dictionary {
	return NewDictionary(map[string]string{
		"김치찌개":  "Kimchi Stew",
		"된장찌개":  "Soybean Paste Stew",
		"순두부찌개": "Soft Tofu Stew",
		"부대찌개":  "Army Base Stew",
		"비빔밥":   "Bibimbap",
		"돌솥비빔밥": "Hot Stone Pot Bibimbap",
		"불고기":   "Bulgogi",
		"제육볶음":  "Spicy Stir-fried Pork",
		"삼겹살":   "Grilled Pork Belly",
		"갈비탕":   "Short Rib Soup",
		"설렁탕":   "Ox Bone Soup",
		"삼계탕":   "Ginseng Chicken Soup",
		"육개장":   "Spicy Beef Soup",
		"냉면":    "Cold Buckwheat Noodles",
		"물냉면":   "Cold Noodles in Broth",
		"비빔냉면":  "Spicy Mixed Cold Noodles",
		"칼국수":   "Knife-cut Noodle Soup",
		"잔치국수":  "Banquet Noodles",
		"떡볶이":   "Spicy Rice Cakes",
		"김밥":    "Seaweed Rice Roll",
		"잡채":    "Stir-fried Glass Noodles",
		"파전":    "Green Onion Pancake",
		"해물파전":  "Seafood Green Onion Pancake",
		"김치전":   "Kimchi Pancake",
		"만두":    "Dumplings",
		"갈비찜":   "Braised Short Ribs",
		"닭갈비":   "Spicy Stir-fried Chicken",
		"보쌈":    "Boiled Pork Wraps",
		"족발":    "Braised Pig's Trotters",
		"공기밥":   "Steamed Rice",
	})
}
