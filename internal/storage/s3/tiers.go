package s3

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/scttfrdmn/cargoship/pkg/aws/config"
)

// S3 Storage Tier Constants
const (
	TierStandard          = "STANDARD"
	TierStandardIA        = "STANDARD_IA"
	TierOneZoneIA         = "ONEZONE_IA"
	TierReducedRedundancy = "REDUCED_REDUNDANCY"
	TierGlacierIR         = "GLACIER_IR"
	TierGlacier           = "GLACIER"
	TierDeepArchive       = "DEEP_ARCHIVE"
	TierIntelligent       = "INTELLIGENT_TIERING"
)

var validTiers = map[string]bool{
	TierStandard:          true,
	TierStandardIA:        true,
	TierOneZoneIA:         true,
	TierReducedRedundancy: true,
	TierGlacierIR:         true,
	TierGlacier:           true,
	TierDeepArchive:       true,
	TierIntelligent:       true,
}

// IsValidTier reports whether tier names a known storage class. Empty means
// the bucket default.
func IsValidTier(tier string) bool {
	return tier == "" || validTiers[strings.ToUpper(tier)]
}

// ConvertTierToStorageClass converts our tier constants to AWS SDK storage class types
func ConvertTierToStorageClass(tier string) types.StorageClass {
	switch strings.ToUpper(tier) {
	case TierStandard:
		return types.StorageClassStandard
	case TierStandardIA:
		return types.StorageClassStandardIa
	case TierOneZoneIA:
		return types.StorageClassOnezoneIa
	case TierReducedRedundancy:
		return types.StorageClassReducedRedundancy
	case TierGlacierIR:
		return types.StorageClassGlacierIr
	case TierGlacier:
		return types.StorageClassGlacier
	case TierDeepArchive:
		return types.StorageClassDeepArchive
	case TierIntelligent:
		return types.StorageClassIntelligentTiering
	default:
		return types.StorageClassStandard
	}
}

// ConvertTierToCargoShipStorageClass converts our tier constants to CargoShip storage class types
func ConvertTierToCargoShipStorageClass(tier string) config.StorageClass {
	switch strings.ToUpper(tier) {
	case TierStandard:
		return config.StorageClassStandard
	case TierStandardIA:
		return config.StorageClassStandardIA
	case TierOneZoneIA:
		return config.StorageClassOneZoneIA
	case TierReducedRedundancy:
		return config.StorageClassStandard // deprecated tier
	case TierGlacierIR:
		return config.StorageClassGlacier // CargoShip has no instant retrieval class
	case TierGlacier:
		return config.StorageClassGlacier
	case TierDeepArchive:
		return config.StorageClassDeepArchive
	case TierIntelligent:
		return config.StorageClassIntelligentTiering
	default:
		return config.StorageClassStandard
	}
}
