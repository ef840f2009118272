package catalog

import (
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk layout of a catalog:
//
//	currency: ETH
//	plans:
//	  - tier: basic
//	    monthly_price: {amount: 50000000}
//	    credits_per_month: 2500
//	top_ups:
//	  - id: 0
//	    name: small
//	    credits: 500
//	    price: {amount: 20000000}
type File struct {
	Currency string  `yaml:"currency"`
	Plans    []Plan  `yaml:"plans"`
	TopUps   []TopUp `yaml:"top_ups"`
}

// UnmarshalYAML accepts the tier name or its rank.
func (t *Tier) UnmarshalYAML(value *yaml.Node) error {
	return t.UnmarshalText([]byte(value.Value))
}

// Parse decodes a catalog file. Amounts without a currency inherit the file currency.
func Parse(r io.Reader) (*Plans, *TopUps, error) {
	var f File
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	if f.Currency == "" {
		f.Currency = DefaultCurrency
	}
	for i := range f.Plans {
		if f.Plans[i].MonthlyPrice.Currency == "" {
			f.Plans[i].MonthlyPrice.Currency = f.Currency
		}
	}

	plans, err := NewPlans(f.Plans...)
	if err != nil {
		return nil, nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	topUps, err := NewTopUps(f.Currency, f.TopUps...)
	if err != nil {
		return nil, nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	return plans, topUps, nil
}

// LoadFile reads a catalog from path. An empty path yields the default catalogs.
func LoadFile(path string) (*Plans, *TopUps, error) {
	if path == "" {
		return DefaultPlans(), DefaultTopUps(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Join(ErrFailedToLoadCatalog, err)
	}
	defer f.Close()
	return Parse(f)
}
