package errors

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common error codes shared by every layer of the pipeline.
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_003"
	ErrCodeConflict           ErrorCode = "COMMON_004"
	ErrCodeTimeout            ErrorCode = "COMMON_005"
	ErrCodeValidation         ErrorCode = "COMMON_006"
	ErrCodeSerialization      ErrorCode = "COMMON_007"
	ErrCodeDatabaseError      ErrorCode = "COMMON_008"
	ErrCodeCacheError         ErrorCode = "COMMON_009"
	ErrCodeExternalService    ErrorCode = "COMMON_010"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_011"
	ErrCodeNotImplemented     ErrorCode = "COMMON_012"
)

// Molecule-preparation error codes.  Each code maps to one failure mode in the
// preparation stage's error taxonomy.  Recoverable codes are absorbed at the
// point of failure and logged; ErrCodeContract is never absorbed.
const (
	// ErrCodeMoleculeUnparseable marks input notation that cannot be turned
	// into a valid chemical graph.  The owning record degrades permanently.
	ErrCodeMoleculeUnparseable ErrorCode = "MOLPREP_001"

	// ErrCodeCanonicalizationFailed marks a graph that parsed but cannot be
	// serialized back to canonical notation.  Distinct from "not yet computed".
	ErrCodeCanonicalizationFailed ErrorCode = "MOLPREP_002"

	// ErrCodeEmbeddingFailed marks a conformer whose 3D embedding produced no
	// coordinates after both algorithm variants.  Expected rare occurrence;
	// callers discard the conformer without logging.
	ErrCodeEmbeddingFailed ErrorCode = "MOLPREP_003"

	// ErrCodeStandardizationFailed marks a standardization-service failure.
	// Never fatal; callers fall back to the engine canonical form.
	ErrCodeStandardizationFailed ErrorCode = "MOLPREP_004"

	// ErrCodeRepairFailed marks a repair pass attempted on an invalid graph.
	ErrCodeRepairFailed ErrorCode = "MOLPREP_005"

	// ErrCodePatternUnsupported marks a substructure or reaction pattern the
	// configured chemistry engine does not understand.
	ErrCodePatternUnsupported ErrorCode = "MOLPREP_006"

	// ErrCodeContract marks a programming-contract breach (precondition
	// violation), e.g. requesting the hydrogen-excluded canonical form before
	// the hydrogen-included form has ever been computed.  Not a user error.
	ErrCodeContract ErrorCode = "MOLPREP_007"
)

// Aliases kept for call-site brevity.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeUnknown      = ErrorCode("UNKNOWN")
	CodeOK           = ErrorCode("OK")
)
