package conformance_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhirpath-go/fhirpath/pkg/conformance"
)

// TestOfficialSuite runs every case in the directory named by the
// FHIRPATH_CONFORMANCE_SUITE environment variable, laid out as
// <suite>/groups/<group>/<case>.json (plus an optional <suite>/datasets/
// directory of shared input resources). It is skipped when the variable is
// unset — no suite is bundled with this module.
func TestOfficialSuite(t *testing.T) {
	suiteDir := os.Getenv("FHIRPATH_CONFORMANCE_SUITE")
	if suiteDir == "" {
		t.Skip("FHIRPATH_CONFORMANCE_SUITE not set; skipping external conformance suite")
	}

	suite, err := conformance.LoadSuite(suiteDir)
	require.NoError(t, err)
	require.NotEmpty(t, suite.Groups)

	ctx := context.Background()
	for _, group := range suite.Groups {
		t.Run(group.Name, func(t *testing.T) {
			for _, tc := range group.Cases {
				tc := tc
				t.Run(tc.ID, func(t *testing.T) {
					data, err := conformance.GetData(tc, suite.Datasets)
					require.NoError(t, err)

					var raw []byte
					if data != nil {
						raw, err = json.Marshal(data)
						require.NoError(t, err)
					}

					result, err := conformance.EvaluateTestCase(ctx, tc, raw)
					require.NoError(t, err)

					if tc.Error != nil {
						assert.Error(t, result.Error)
						return
					}
					assert.True(t, result.Passed, result.Message)
				})
			}
		})
	}
}
