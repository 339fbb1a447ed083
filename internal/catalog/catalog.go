// Package catalog converts the product lists returned by the upstream top-up providers
// into the uniform NormalizedProduct shape that the admin console imports packs from.
//
// Every provider speaks its own JSON dialect. Smile.one lists packs as
// {id, spu, price} next to a list of game servers, while Yokcash and Hopestore wrap
// {id, nama_layanan, harga} entries in a products.data envelope. Each dialect has
// its own Product type and Normalize switches over all of them.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"topup_store/internal/models"
	"topup_store/internal/pricing"
)

var (
	// ErrUnknownProvider indicates that the provider tag is not supported.
	ErrUnknownProvider = errors.New("catalog: unknown provider")
	// ErrMalformedPayload indicates that the envelope could not be decoded.
	ErrMalformedPayload = errors.New("catalog: malformed payload")
	// ErrUnsuccessful indicates that the provider answered with success=false.
	ErrUnsuccessful = errors.New("catalog: provider reported failure")
)

// Product is one provider catalog entry in its native shape.
type Product interface {
	Provider() models.Provider
	isProduct()
}

// SmileOneProduct is a Smile.one pack entry.
type SmileOneProduct struct {
	ID    Text            `json:"id"`
	SPU   Text            `json:"spu"`
	Price Amount          `json:"price"`
	Raw   json.RawMessage `json:"-"`
}

// YokcashProduct is a Yokcash product entry.
type YokcashProduct struct {
	ID          Text            `json:"id"`
	NamaLayanan Text            `json:"nama_layanan"`
	Harga       Amount          `json:"harga"`
	Raw         json.RawMessage `json:"-"`
}

// HopestoreProduct is a Hopestore product entry.
type HopestoreProduct struct {
	ID          Text            `json:"id"`
	NamaLayanan Text            `json:"nama_layanan"`
	Harga       Amount          `json:"harga"`
	Raw         json.RawMessage `json:"-"`
}

func (SmileOneProduct) Provider() models.Provider  { return models.ProviderSmileOne }
func (YokcashProduct) Provider() models.Provider   { return models.ProviderYokcash }
func (HopestoreProduct) Provider() models.Provider { return models.ProviderHopestore }

func (SmileOneProduct) isProduct()  {}
func (YokcashProduct) isProduct()   {}
func (HopestoreProduct) isProduct() {}

// Catalog is the normalized result of one provider payload.
type Catalog struct {
	Provider models.Provider            `json:"provider"`
	Products []models.NormalizedProduct `json:"products"`
	Servers  []models.ProviderServer    `json:"servers"`
	// Dropped counts product and server entries skipped because they were malformed.
	Dropped int `json:"dropped"`
}

type smileOneEnvelope struct {
	Success bool              `json:"success"`
	Packs   []json.RawMessage `json:"packs"`
	Servers []json.RawMessage `json:"servers"`
}

type smileOneServer struct {
	ServerID   Text `json:"server_id"`
	ServerName Text `json:"server_name"`
}

type productsEnvelope struct {
	Success  bool `json:"success"`
	Products struct {
		Data []json.RawMessage `json:"data"`
	} `json:"products"`
}

// Parse decodes a provider payload into native products and, for Smile.one, the game
// servers. Entries that cannot be decoded are skipped and counted.
func Parse(provider models.Provider, payload []byte) (products []Product, servers []models.ProviderServer, dropped int, err error) {
	var entries []json.RawMessage

	switch provider {
	case models.ProviderSmileOne:
		var envelope smileOneEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, nil, 0, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
		}
		if !envelope.Success {
			return nil, nil, 0, ErrUnsuccessful
		}
		entries = envelope.Packs
		for _, entry := range envelope.Servers {
			var server smileOneServer
			if err := json.Unmarshal(entry, &server); err != nil || server.ServerID == "" {
				dropped++
				continue
			}
			servers = append(servers, models.ProviderServer{ServerID: string(server.ServerID), ServerName: string(server.ServerName)})
		}
	case models.ProviderYokcash, models.ProviderHopestore:
		var envelope productsEnvelope
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, nil, 0, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
		}
		if !envelope.Success {
			return nil, nil, 0, ErrUnsuccessful
		}
		entries = envelope.Products.Data
	default:
		return nil, nil, 0, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	products = make([]Product, 0, len(entries))
	for _, entry := range entries {
		product, err := decodeProduct(provider, entry)
		if err != nil {
			dropped++
			continue
		}
		products = append(products, product)
	}
	return products, servers, dropped, nil
}

func decodeProduct(provider models.Provider, entry json.RawMessage) (Product, error) {
	switch provider {
	case models.ProviderSmileOne:
		product := SmileOneProduct{Raw: entry}
		err := json.Unmarshal(entry, &product)
		return product, err
	case models.ProviderYokcash:
		product := YokcashProduct{Raw: entry}
		err := json.Unmarshal(entry, &product)
		return product, err
	case models.ProviderHopestore:
		product := HopestoreProduct{Raw: entry}
		err := json.Unmarshal(entry, &product)
		return product, err
	}
	return nil, ErrUnknownProvider
}

// NormalizeProduct maps a native product into the uniform shape. It reports false
// when the product has no id or no name.
func NormalizeProduct(product Product) (models.NormalizedProduct, bool) {
	var normalized models.NormalizedProduct

	switch p := product.(type) {
	case SmileOneProduct:
		normalized = models.NormalizedProduct{ID: string(p.ID), Name: string(p.SPU), Price: float64(p.Price), Raw: p.Raw}
	case YokcashProduct:
		normalized = models.NormalizedProduct{ID: string(p.ID), Name: string(p.NamaLayanan), Price: float64(p.Harga), Raw: p.Raw}
	case HopestoreProduct:
		normalized = models.NormalizedProduct{ID: string(p.ID), Name: string(p.NamaLayanan), Price: float64(p.Harga), Raw: p.Raw}
	default:
		return normalized, false
	}

	if normalized.ID == "" || normalized.Name == "" {
		return normalized, false
	}
	normalized.Price = pricing.Sanitize(normalized.Price)
	return normalized, true
}

// Normalize converts a raw provider payload into a Catalog, preserving the order in
// which entries were received. On error the returned catalog is empty but usable, so
// callers can keep working with an empty pack list.
func Normalize(provider models.Provider, payload []byte) (*Catalog, error) {
	result := &Catalog{
		Provider: provider,
		Products: []models.NormalizedProduct{},
		Servers:  []models.ProviderServer{},
	}

	products, servers, dropped, err := Parse(provider, payload)
	if err != nil {
		return result, err
	}
	if servers != nil {
		result.Servers = servers
	}
	result.Dropped = dropped

	for _, product := range products {
		normalized, ok := NormalizeProduct(product)
		if !ok {
			result.Dropped++
			continue
		}
		result.Products = append(result.Products, normalized)
	}
	return result, nil
}

// Find returns the product with the given id.
func (c *Catalog) Find(id string) (models.NormalizedProduct, bool) {
	for _, product := range c.Products {
		if product.ID == id {
			return product, true
		}
	}
	return models.NormalizedProduct{}, false
}

// Text decodes a JSON string or number into a trimmed string. Providers are not
// consistent about quoting identifiers.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(strings.TrimSpace(s))
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*t = Text(n.String())
		return nil
	}

	return fmt.Errorf("catalog: expected string or number, got %s", data)
}

// Amount decodes a price given as a JSON number or numeric string. Missing,
// unparseable, negative and NaN values decode to zero.
type Amount float64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(data []byte) error {
	*a = 0

	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*a = Amount(pricing.Sanitize(f))
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*a = Amount(pricing.Sanitize(f))
		}
	}
	return nil
}
