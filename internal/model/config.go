package model

import "sort"

// SiteConfig is the singleton deployment configuration edited from the admin
// panel.
type SiteConfig struct {
	Socials  Socials                  `json:"socials"`
	Contact  Contact                  `json:"contact"`
	Payments map[string]PaymentMethod `json:"payments"`
}

// Socials holds the social network links shown in the footer.
type Socials struct {
	Instagram string `json:"instagram"`
	Twitter   string `json:"twitter"`
	Facebook  string `json:"facebook"`
}

// Contact holds the public contact details.
type Contact struct {
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// PaymentMethod is one manual payment provider. Which account fields are
// used depends on the provider.
type PaymentMethod struct {
	Enabled bool   `json:"enabled"`
	Email   string `json:"email,omitempty"`
	CVU     string `json:"cvu,omitempty"`
	CBU     string `json:"cbu,omitempty"`
	Alias   string `json:"alias,omitempty"`
}

// Known payment providers.
const (
	PaymentPayPal      = "paypal"
	PaymentMercadoPago = "mercadopago"
	PaymentCuentaDNI   = "cuentadni"
)

// DefaultSiteConfig is used whenever no stored config exists.
func DefaultSiteConfig() SiteConfig {
	return SiteConfig{
		Socials: Socials{
			Instagram: "https://instagram.com/cieloabierto",
			Twitter:   "https://twitter.com/cieloabierto",
			Facebook:  "https://facebook.com/cieloabierto",
		},
		Contact: Contact{
			Email:   "contacto@cieloabierto.com",
			Phone:   "+54 11 1234-5678",
			Address: "Buenos Aires, Argentina",
		},
		Payments: map[string]PaymentMethod{
			PaymentPayPal:      {Enabled: true, Email: "pagos@cieloabierto.com"},
			PaymentMercadoPago: {Enabled: false},
			PaymentCuentaDNI:   {Enabled: false},
		},
	}
}

// Normalize fills every missing section from the defaults so the result is
// always well formed.
func (c SiteConfig) Normalize() SiteConfig {
	def := DefaultSiteConfig()
	if c.Socials == (Socials{}) {
		c.Socials = def.Socials
	}
	if c.Contact == (Contact{}) {
		c.Contact = def.Contact
	}
	payments := make(map[string]PaymentMethod, len(def.Payments))
	for name, m := range def.Payments {
		payments[name] = m
	}
	for name, m := range c.Payments {
		payments[name] = m
	}
	c.Payments = payments
	return c
}

// EnabledPayments returns the names of the enabled providers, sorted.
func (c SiteConfig) EnabledPayments() []string {
	var out []string
	for name, m := range c.Payments {
		if m.Enabled {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
