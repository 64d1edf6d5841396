package dataconnect

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/levenlabs/go-lflag"
)

const (
	// DefaultBaseURL is the Enedis sandbox.
	DefaultBaseURL     = "https://ext.prod-sandbox.api.enedis.fr"
	DefaultRedirectURI = "http://localhost"
	DefaultTimeout     = time.Minute
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds everything needed to build a Client.
type Config struct {
	// ConsumptionPRM and ProductionPRM identify the metering points. At least
	// one must be set. An empty string means absent.
	ConsumptionPRM string `validate:"omitempty,len=14,number"`
	ProductionPRM  string `validate:"omitempty,len=14,number"`

	RedirectURI  string `validate:"startswith=http:|startswith=https:"`
	ClientID     string `validate:"required,max=128"`
	ClientSecret string `validate:"required,max=128"`

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Timeout bounds a single HTTP attempt. Defaults to DefaultTimeout.
	Timeout time.Duration `validate:"gte=0"`
	// MinInterval is the minimum delay between two HTTP attempts. Zero
	// disables pacing.
	MinInterval time.Duration `validate:"gte=0"`
}

var fieldErrors = map[string]error{
	"ConsumptionPRM": ErrInvalidPRM,
	"ProductionPRM":  ErrInvalidPRM,
	"RedirectURI":    ErrInvalidRedirectURI,
	"ClientID":       ErrInvalidClientID,
	"ClientSecret":   ErrInvalidClientSecret,
}

// Validate ensures the configuration is valid. It never performs any I/O.
// The first invalid field is reported, in field order.
func (c Config) Validate() error {
	if c.ConsumptionPRM == "" && c.ProductionPRM == "" {
		return fmt.Errorf("%w: a consumption or production prm is required", ErrInvalidPRM)
	}

	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		// values are left out, ClientSecret is one of them
		if sentinel, ok := fieldErrors[fe.StructField()]; ok {
			return fmt.Errorf("%w: %s failed the %q check", sentinel, fe.StructField(), fe.Tag())
		}
		return fmt.Errorf("invalid %s: failed the %q check", fe.StructField(), fe.Tag())
	}
	return err
}

// Configured sets up flags for the Data Connect client and returns the
// instance. The client is only usable after lflag.Configure has run; an
// invalid configuration panics there.
func Configured() *Client {
	c := &Client{}

	apiURL := lflag.String("dataconnect-api-url", DefaultBaseURL, "URL for the Enedis Data Connect API")
	clientID := lflag.RequiredString("dataconnect-client-id", "OAuth2 client identifier")
	clientSecret := lflag.RequiredString("dataconnect-client-secret", "OAuth2 client secret")
	redirectURI := lflag.String("dataconnect-redirect-uri", DefaultRedirectURI, "OAuth2 redirect URI sent with the token exchange")
	consumptionPRM := lflag.String("dataconnect-consumption-prm", "", "14 digit PRM of the consumption metering point")
	productionPRM := lflag.String("dataconnect-production-prm", "", "14 digit PRM of the production metering point")
	timeout := lflag.Duration("dataconnect-timeout", DefaultTimeout, "Timeout of a single HTTP attempt")
	minInterval := lflag.Duration("dataconnect-min-interval", 0, "Minimum delay between two HTTP attempts (e.g. 200ms). 0 disables pacing.")

	lflag.Do(func() {
		err := c.init(Config{
			ConsumptionPRM: *consumptionPRM,
			ProductionPRM:  *productionPRM,
			ClientID:       *clientID,
			ClientSecret:   *clientSecret,
			RedirectURI:    *redirectURI,
			BaseURL:        *apiURL,
			Timeout:        *timeout,
			MinInterval:    *minInterval,
		})
		if err != nil {
			panic(fmt.Sprintf("dataconnect validation failed: %v", err))
		}
	})

	return c
}
