package options

import (
	"github.com/spf13/pflag"
)

// IOptions is the contract every per-concern options struct satisfies so the
// application aggregate can validate and register them uniformly.
type IOptions interface {
	// Validate parses and validates the parameters entered by the user at
	// program startup.
	Validate() []error

	// AddFlags binds the options fields to the given FlagSet.
	AddFlags(fs *pflag.FlagSet)
}
