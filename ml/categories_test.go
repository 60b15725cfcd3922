package ml

import (
	"errors"
	"testing"
)

func TestSoilCodesTotalUniqueInRange(t *testing.T) {
	seen := make(map[int]SoilType)
	for _, soil := range SoilTypes() {
		code, err := SoilCode(string(soil))
		if err != nil {
			t.Fatalf("SoilCode(%q): %v", soil, err)
		}
		if code < 0 || code > 5 {
			t.Fatalf("soil code %d for %q out of range [0, 5]", code, soil)
		}
		if prev, ok := seen[code]; ok {
			t.Fatalf("soil code %d shared by %q and %q", code, prev, soil)
		}
		seen[code] = soil
		if name, ok := SoilName(code); !ok || name != soil {
			t.Fatalf("SoilName(%d) = %q, want %q", code, name, soil)
		}
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 soil types, got %d", len(seen))
	}
}

func TestCropCodesTotalUniqueInRange(t *testing.T) {
	seen := make(map[int]CropType)
	for _, crop := range CropTypes() {
		code, err := CropCode(string(crop))
		if err != nil {
			t.Fatalf("CropCode(%q): %v", crop, err)
		}
		if code < 0 || code > 7 {
			t.Fatalf("crop code %d for %q out of range [0, 7]", code, crop)
		}
		if prev, ok := seen[code]; ok {
			t.Fatalf("crop code %d shared by %q and %q", code, prev, crop)
		}
		seen[code] = crop
	}
	if len(seen) != 8 {
		t.Fatalf("expected 8 crop types, got %d", len(seen))
	}
}

func TestCategoryCodesAreStable(t *testing.T) {
	soils := map[string]int{"Clay": 0, "Loamy": 1, "Peaty": 2, "Sandy": 3, "Silt": 4, "Volcanic": 5}
	for name, want := range soils {
		if got, _ := SoilCode(name); got != want {
			t.Errorf("SoilCode(%q) = %d, want %d", name, got, want)
		}
	}
	crops := map[string]int{"Banana": 0, "Cassava": 1, "Coffee": 2, "Maize": 3, "Potato": 4, "Rice": 5, "Tea": 6, "Wheat": 7}
	for name, want := range crops {
		if got, _ := CropCode(name); got != want {
			t.Errorf("CropCode(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestCategoryLookupIgnoresCaseAndSpace(t *testing.T) {
	if code, err := SoilCode("  volcanic "); err != nil || code != 5 {
		t.Fatalf("SoilCode(volcanic) = %d, %v", code, err)
	}
	if code, err := CropCode("MAIZE"); err != nil || code != 3 {
		t.Fatalf("CropCode(MAIZE) = %d, %v", code, err)
	}
	// Full case folding maps the long s to s, which lowercasing does not.
	if code, err := SoilCode("\u017Filt"); err != nil || code != 4 {
		t.Fatalf("SoilCode(long-s silt) = %d, %v", code, err)
	}
	if code, err := CropCode("TEA\t"); err != nil || code != 6 {
		t.Fatalf("CropCode(TEA) = %d, %v", code, err)
	}
}

func TestUnknownCategory(t *testing.T) {
	if _, err := SoilCode("Gravel"); !errors.Is(err, ErrUnknownSoilType) {
		t.Fatalf("expected ErrUnknownSoilType, got %v", err)
	}
	if _, err := CropCode("Barley"); !errors.Is(err, ErrUnknownCropType) {
		t.Fatalf("expected ErrUnknownCropType, got %v", err)
	}
	if _, ok := CropName(8); ok {
		t.Fatal("expected CropName(8) to fail")
	}
}
