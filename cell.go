package forth

// Cell is the machine word of the virtual machine. It is wide enough to
// hold any address within an image, any primitive opcode, and any integer
// value a Forth program manipulates. Arithmetic on cells wraps like any
// other fixed-width unsigned integer; SLESS/SMORE and the numeric parser
// reinterpret a cell's bits as a signed value where two's-complement
// comparison is wanted.
type Cell uint64

func (c Cell) signed() int64 { return int64(c) }

func signedCell(i int64) Cell { return Cell(i) }

// cellSize is the on-disk and in-memory width of a Cell, in bytes. This
// implementation fixes it at 8 so that the header's cell-size field and the
// running binary's width can never silently disagree within one process.
const cellSize = 8

// Register indices, numbered identically to the classic layout so that a
// core dump or a hand-written test can be cross-checked against it cell for
// cell.
const (
	regDIC           Cell = 6
	regRSTK          Cell = 7
	regSTATE         Cell = 8
	regBASE          Cell = 9
	regPWD           Cell = 10
	regSOURCEID      Cell = 11
	regSIN           Cell = 12
	regSIDX          Cell = 13
	regSLEN          Cell = 14
	regSTARTADDR     Cell = 15
	regFIN           Cell = 16
	regFOUT          Cell = 17
	regSTDIN         Cell = 18
	regSTDOUT        Cell = 19
	regSTDERR        Cell = 20
	regARGC          Cell = 21
	regARGV          Cell = 22
	regDEBUG         Cell = 23
	regINVALID       Cell = 24
	regTOP           Cell = 25
	regINSTRUCTION   Cell = 26
	regSTACKSIZE     Cell = 27
	regERRORHANDLER  Cell = 28
)

// registerNames maps each register to the Forth-visible constant name
// define_constant binds it to during bootstrap (see bootstrap.go). Named
// with the original's leading backtick convention for registers that are
// implementation details rather than ordinary Forth vocabulary, matching
// the style a reader of a libforth-family core dump would expect.
var registerNames = []struct {
	reg  Cell
	name string
}{
	{regDIC, "h"},
	{regRSTK, "r"},
	{regSTATE, "`state"},
	{regBASE, "base"},
	{regPWD, "pwd"},
	{regSOURCEID, "`source-id"},
	{regSIN, "`sin"},
	{regSIDX, "`sidx"},
	{regSLEN, "`slen"},
	{regSTARTADDR, "`start-address"},
	{regFIN, "`fin"},
	{regFOUT, "`fout"},
	{regSTDIN, "`stdin"},
	{regSTDOUT, "`stdout"},
	{regSTDERR, "`stderr"},
	{regARGC, "`argc"},
	{regARGV, "`argv"},
	{regDEBUG, "`debug"},
	{regINVALID, "`invalid"},
	{regTOP, "`top"},
	{regINSTRUCTION, "`instruction"},
	{regSTACKSIZE, "`stack-size"},
	{regERRORHANDLER, "`error-handler"},
}

// Memory layout constants.
const (
	stringOffset       Cell = 32 // parse buffer begins here
	maximumWordLength  Cell = 32 // in cells
	dictionaryStart    Cell = stringOffset + maximumWordLength
	minimumStackSize   Cell = 64
	minimumCoreSize    Cell = 2048
	defaultCoreSize    Cell = 32 * 1024
	wordLengthOffset   Cell = 8
	instructionMask    Cell = 0x7f
	hiddenBit          Cell = 0x80
	blockSize          int  = 1024
)

// errorHandlerMode is the disposition ERROR_HANDLER selects among when a
// recoverable error is raised.
type errorHandlerMode Cell

const (
	errorRecover errorHandlerMode = iota
	errorHalt
	errorInvalidate
)

// sourceID values for the SOURCE_ID register.
const (
	sourceFile   Cell = 0
	sourceString Cell = ^Cell(0) // all bits set, i.e. -1 reinterpreted unsigned
)

func wordLength(misc Cell) Cell  { return (misc >> wordLengthOffset) & 0xff }
func wordHidden(misc Cell) bool  { return misc&hiddenBit != 0 }
func instructionOf(misc Cell) Cell { return misc & instructionMask }

func packMISC(op opcode, length Cell, hidden bool) Cell {
	m := (length << wordLengthOffset) | Cell(op)
	if hidden {
		m |= hiddenBit
	}
	return m
}
