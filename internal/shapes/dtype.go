package shapes

// DType is the element type of an array shape, using the XLA primitive type names.
type DType int

const (
	InvalidDType DType = iota
	Pred
	S8
	S16
	S32
	S64
	U8
	U16
	U32
	U64
	F16
	BF16
	F32
	F64
	// Token is the element type of synchronization tokens. Token shapes carry no data.
	Token
)

var dtypeNames = [...]string{
	InvalidDType: "invalid",
	Pred:         "pred",
	S8:           "s8",
	S16:          "s16",
	S32:          "s32",
	S64:          "s64",
	U8:           "u8",
	U16:          "u16",
	U32:          "u32",
	U64:          "u64",
	F16:          "f16",
	BF16:         "bf16",
	F32:          "f32",
	F64:          "f64",
	Token:        "token",
}

// String returns the textual program name of the dtype, e.g. "f32".
func (dtype DType) String() string {
	if dtype < 0 || int(dtype) >= len(dtypeNames) {
		return "invalid"
	}
	return dtypeNames[dtype]
}

// DTypeFromName returns the dtype with the given program name.
func DTypeFromName(name string) (DType, bool) {
	for i, n := range dtypeNames {
		if n == name && DType(i) != InvalidDType {
			return DType(i), true
		}
	}
	return InvalidDType, false
}

// Size returns the number of bytes one element occupies. Tokens and invalid dtypes have size 0.
func (dtype DType) Size() int {
	switch dtype {
	case Pred, S8, U8:
		return 1
	case S16, U16, F16, BF16:
		return 2
	case S32, U32, F32:
		return 4
	case S64, U64, F64:
		return 8
	default:
		return 0
	}
}

// IsFloat returns whether dtype is a floating point type.
func (dtype DType) IsFloat() bool {
	return dtype == F16 || dtype == BF16 || dtype == F32 || dtype == F64
}

// IsInt returns whether dtype is a signed or unsigned integer type.
func (dtype DType) IsInt() bool {
	return dtype.IsSigned() || dtype.IsUnsigned()
}

// IsSigned returns whether dtype is a signed integer type.
func (dtype DType) IsSigned() bool {
	return dtype >= S8 && dtype <= S64
}

// IsUnsigned returns whether dtype is an unsigned integer type.
func (dtype DType) IsUnsigned() bool {
	return dtype >= U8 && dtype <= U64
}

// Bits returns the bit width of numeric dtypes, 0 otherwise.
func (dtype DType) Bits() int {
	if dtype == Pred {
		return 1
	}
	return dtype.Size() * 8
}
