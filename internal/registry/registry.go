// Package registry maintains the ordered list of packs attached to a game while it is
// being created or edited in the admin console.
//
// Packs enter the registry either imported from the normalized provider catalog, with
// prices derived by the pricing package, or entered by hand. The registry holds no
// remote state: its contents are sent in full as the packs of the game payload.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"topup_store/internal/models"
	"topup_store/internal/pricing"
)

var (
	// ErrUnknownProduct indicates that the product id is not part of the loaded catalog.
	ErrUnknownProduct = errors.New("registry: product not found in catalog")
	// ErrPackNotFound indicates that the pack is no longer in the registry.
	ErrPackNotFound = errors.New("registry: pack not found")
	// ErrIndexOutOfRange indicates a position outside of the pack list.
	ErrIndexOutOfRange = errors.New("registry: pack index out of range")
)

// DuplicatePackError is returned when a pack with the same id is already registered.
type DuplicatePackError struct {
	PackID string
}

func (e *DuplicatePackError) Error() string {
	return fmt.Sprintf("registry: pack %q already exists", e.PackID)
}

// ValidationError lists the pack fields that are missing or invalid.
type ValidationError struct {
	Missing []string
	Invalid []string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(e.Invalid, ", "))
	}
	return "registry: " + strings.Join(parts, "; ")
}

// State is a serializable snapshot of a registry.
type State struct {
	Provider models.Provider            `json:"provider,omitempty"`
	Catalog  []models.NormalizedProduct `json:"catalog"`
	Packs    []models.Pack              `json:"packs"`
	Editing  string                     `json:"editing,omitempty"`
}

// Registry is the pack list of one admin form. It is not safe for concurrent use.
type Registry struct {
	provider models.Provider
	catalog  []models.NormalizedProduct
	packs    []models.Pack
	editing  string
}

// New returns a registry seeded with the given packs, for example the packs of a
// game that is being edited.
func New(packs []models.Pack) *Registry {
	registry := &Registry{packs: make([]models.Pack, 0, len(packs))}
	registry.packs = append(registry.packs, packs...)
	return registry
}

// Restore rebuilds a registry from a snapshot.
func Restore(state State) *Registry {
	registry := New(state.Packs)
	registry.provider = state.Provider
	registry.catalog = append([]models.NormalizedProduct(nil), state.Catalog...)
	if registry.indexOf(state.Editing) >= 0 {
		registry.editing = state.Editing
	}
	return registry
}

// State returns a snapshot of the registry.
func (r *Registry) State() State {
	return State{
		Provider: r.provider,
		Catalog:  r.Catalog(),
		Packs:    r.Packs(),
		Editing:  r.editing,
	}
}

// LoadCatalog replaces the products that can be imported.
func (r *Registry) LoadCatalog(provider models.Provider, products []models.NormalizedProduct) {
	r.provider = provider
	r.catalog = append(make([]models.NormalizedProduct, 0, len(products)), products...)
}

// Catalog returns the importable products.
func (r *Registry) Catalog() []models.NormalizedProduct {
	return append(make([]models.NormalizedProduct, 0, len(r.catalog)), r.catalog...)
}

// Packs returns the registered packs in insertion order.
func (r *Registry) Packs() []models.Pack {
	return append(make([]models.Pack, 0, len(r.packs)), r.packs...)
}

// Len returns the number of registered packs.
func (r *Registry) Len() int {
	return len(r.packs)
}

// Editing returns the id of the pack under edit, if any.
func (r *Registry) Editing() (string, bool) {
	return r.editing, r.editing != ""
}

// AddFromCatalog imports a catalog product as a pack with derived default prices.
func (r *Registry) AddFromCatalog(productID string) (models.Pack, error) {
	var product models.NormalizedProduct
	found := false
	for _, candidate := range r.catalog {
		if candidate.ID == productID {
			product, found = candidate, true
			break
		}
	}
	if !found {
		return models.Pack{}, ErrUnknownProduct
	}

	if r.indexOf(product.ID) >= 0 {
		return models.Pack{}, &DuplicatePackError{PackID: product.ID}
	}

	prices := pricing.Derive(product.Price)
	pack := models.Pack{
		PackID:        product.ID,
		Name:          product.Name,
		Description:   product.Name,
		RetailPrice:   prices.Retail,
		ResellerPrice: prices.Reseller,
		CostPrice:     prices.Cost,
	}
	r.packs = append(r.packs, pack)
	return pack, nil
}

// AddManual appends a pack entered by hand. Prices are taken as given.
func (r *Registry) AddManual(input models.PackInput) (models.Pack, error) {
	pack, err := Validate(input)
	if err != nil {
		return models.Pack{}, err
	}

	if r.indexOf(pack.PackID) >= 0 {
		return models.Pack{}, &DuplicatePackError{PackID: pack.PackID}
	}

	r.packs = append(r.packs, pack)
	return pack, nil
}

// BeginEdit marks a pack as being edited and returns its current fields.
func (r *Registry) BeginEdit(packID string) (models.Pack, error) {
	idx := r.indexOf(packID)
	if idx < 0 {
		return models.Pack{}, ErrPackNotFound
	}
	r.editing = packID
	return r.packs[idx], nil
}

// CancelEdit drops the edit in progress.
func (r *Registry) CancelEdit() {
	r.editing = ""
}

// Edit replaces the pack with the given id, keeping its position. It returns
// ErrPackNotFound when the pack has been removed meanwhile; the registry is left
// unchanged in that case.
func (r *Registry) Edit(packID string, input models.PackInput) (models.Pack, error) {
	idx := r.indexOf(packID)
	if idx < 0 {
		if r.editing == packID {
			r.editing = ""
		}
		return models.Pack{}, ErrPackNotFound
	}

	pack, err := Validate(input)
	if err != nil {
		return models.Pack{}, err
	}

	if other := r.indexOf(pack.PackID); other >= 0 && other != idx {
		return models.Pack{}, &DuplicatePackError{PackID: pack.PackID}
	}

	r.packs[idx] = pack
	if r.editing == packID {
		r.editing = ""
	}
	return pack, nil
}

// Remove deletes the pack at the given position. Removing the pack under edit
// cancels the edit.
func (r *Registry) Remove(index int) (models.Pack, error) {
	if index < 0 || index >= len(r.packs) {
		return models.Pack{}, ErrIndexOutOfRange
	}

	removed := r.packs[index]
	r.packs = append(r.packs[:index], r.packs[index+1:]...)
	if r.editing == removed.PackID {
		r.editing = ""
	}
	return removed, nil
}

func (r *Registry) indexOf(packID string) int {
	if packID == "" {
		return -1
	}
	for i, pack := range r.packs {
		if pack.PackID == packID {
			return i
		}
	}
	return -1
}

// Validate checks that every required pack field is present and that no price or
// amount is negative.
func Validate(input models.PackInput) (models.Pack, error) {
	verr := &ValidationError{}

	packID := strings.TrimSpace(input.PackID)
	name := strings.TrimSpace(input.Name)
	if packID == "" {
		verr.Missing = append(verr.Missing, "packId")
	}
	if name == "" {
		verr.Missing = append(verr.Missing, "name")
	}

	numbers := []struct {
		field string
		value *float64
	}{
		{"amount", input.Amount},
		{"retailPrice", input.RetailPrice},
		{"resellerPrice", input.ResellerPrice},
		{"costPrice", input.CostPrice},
	}
	for _, number := range numbers {
		switch {
		case number.value == nil:
			verr.Missing = append(verr.Missing, number.field)
		case pricing.Sanitize(*number.value) != *number.value:
			verr.Invalid = append(verr.Invalid, number.field)
		}
	}

	if len(verr.Missing) > 0 || len(verr.Invalid) > 0 {
		return models.Pack{}, verr
	}

	return models.Pack{
		PackID:        packID,
		Name:          name,
		Description:   strings.TrimSpace(input.Description),
		Amount:        *input.Amount,
		RetailPrice:   *input.RetailPrice,
		ResellerPrice: *input.ResellerPrice,
		CostPrice:     *input.CostPrice,
		IsActive:      input.IsActive,
	}, nil
}
