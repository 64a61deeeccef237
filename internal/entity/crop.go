package entity

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Crop string

const (
	CropRice  Crop = "rice"
	CropWheat Crop = "wheat"
)

var ErrUnknownCrop = errors.New("unknown crop")

// Crops lists the supported crops in display order.
func Crops() []Crop {
	return []Crop{CropRice, CropWheat}
}

// ParseCrop accepts the case-insensitive crop name used by the front ends.
func ParseCrop(raw string) (Crop, error) {
	switch Crop(strings.ToLower(strings.TrimSpace(raw))) {
	case CropRice:
		return CropRice, nil
	case CropWheat:
		return CropWheat, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCrop, raw)
	}
}

func (c Crop) String() string {
	return string(c)
}

// Title returns the crop as shown to users ("Rice", "Wheat").
func (c Crop) Title() string {
	return cases.Title(language.English).String(string(c))
}
