package ml

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

var (
	ErrUnknownSoilType = errors.New("unknown soil type")
	ErrUnknownCropType = errors.New("unknown crop type")
)

// SoilType is a soil category as offered on the input form.
type SoilType string

const (
	SoilClay     SoilType = "Clay"
	SoilLoamy    SoilType = "Loamy"
	SoilPeaty    SoilType = "Peaty"
	SoilSandy    SoilType = "Sandy"
	SoilSilt     SoilType = "Silt"
	SoilVolcanic SoilType = "Volcanic"
)

// CropType is a crop category as offered on the input form.
type CropType string

const (
	CropBanana  CropType = "Banana"
	CropCassava CropType = "Cassava"
	CropCoffee  CropType = "Coffee"
	CropMaize   CropType = "Maize"
	CropPotato  CropType = "Potato"
	CropRice    CropType = "Rice"
	CropTea     CropType = "Tea"
	CropWheat   CropType = "Wheat"
)

// The position in each slice is the code the model was trained with.
var (
	soilTypes = []SoilType{SoilClay, SoilLoamy, SoilPeaty, SoilSandy, SoilSilt, SoilVolcanic}
	cropTypes = []CropType{CropBanana, CropCassava, CropCoffee, CropMaize, CropPotato, CropRice, CropTea, CropWheat}

	soilCodes = indexNames(soilTypes)
	cropCodes = indexNames(cropTypes)
)

// SoilTypes returns the soil categories ordered by code.
func SoilTypes() []SoilType {
	return append([]SoilType(nil), soilTypes...)
}

// CropTypes returns the crop categories ordered by code.
func CropTypes() []CropType {
	return append([]CropType(nil), cropTypes...)
}

// SoilCode resolves a soil name to its model code. Matching ignores case and
// surrounding whitespace so that cleaned dataset values resolve too.
func SoilCode(name string) (int, error) {
	code, ok := soilCodes[categoryKey(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownSoilType, name)
	}
	return code, nil
}

// CropCode resolves a crop name to its model code.
func CropCode(name string) (int, error) {
	code, ok := cropCodes[categoryKey(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCropType, name)
	}
	return code, nil
}

func (s SoilType) Code() int {
	code, _ := SoilCode(string(s))
	return code
}

func (c CropType) Code() int {
	code, _ := CropCode(string(c))
	return code
}

// SoilName is the inverse of SoilCode.
func SoilName(code int) (SoilType, bool) {
	if code < 0 || code >= len(soilTypes) {
		return "", false
	}
	return soilTypes[code], true
}

// CropName is the inverse of CropCode.
func CropName(code int) (CropType, bool) {
	if code < 0 || code >= len(cropTypes) {
		return "", false
	}
	return cropTypes[code], true
}

func indexNames[T ~string](names []T) map[string]int {
	codes := make(map[string]int, len(names))
	for i, name := range names {
		codes[categoryKey(string(name))] = i
	}
	return codes
}

// categoryKey case-folds name. Casers hold state, so each call makes one.
func categoryKey(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
