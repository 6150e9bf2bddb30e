package forth

// opcode identifies a primitive the inner interpreter dispatches on. The
// numbering matches the classic libforth-family enumeration cell for cell,
// so that the "fake push" trick in the outer interpreter (compiling a
// reference to cell 2, whose zero contents decode as PUSH; see the READ case
// in dispatch.go) and any core dump
// produced by this package line up with that lineage.
type opcode Cell

const (
	opPUSH opcode = iota
	opCOMPILE
	opRUN
	opDEFINE
	opIMMEDIATE
	opREAD
	opLOAD
	opSTORE
	opCLOAD
	opCSTORE
	opSUB
	opADD
	opAND
	opOR
	opXOR
	opINV
	opSHL
	opSHR
	opMUL
	opDIV
	opULESS
	opUMORE
	opSLESS
	opSMORE
	opEXIT
	opEMIT
	opKEY
	opFROMR
	opTOR
	opBRANCH
	opQBRANCH
	opPNUM
	opQUOTE
	opCOMMA
	opEQUAL
	opSWAP
	opDUP
	opDROP
	opOVER
	opTAIL
	opBSAVE
	opBLOAD
	opFIND
	opPRINT
	opDEPTH
	opCLOCK
	opEVALUATE
	opPSTK
	opRESTART
	opSYSTEM
	opFCLOSE
	opFOPEN
	opFDELETE
	opFREAD
	opFWRITE
	opFPOS
	opFSEEK
	opFFLUSH
	opFRENAME
	lastOpcode // marker, not a real instruction
)

// instructionNames are the Forth-visible names for every opcode, in
// enumeration order. push/compile/run/define/immediate have entries here for
// completeness but are never compiled as ordinary dictionary words by
// bootstrap (see bootstrap.go), which compiles read and every later
// primitive — define and immediate get
// hand-built immediate headers, and push/compile/run exist purely as
// internal dispatch primitives the compiler and inner interpreter use
// directly.
var instructionNames = [...]string{
	opPUSH:      "push",
	opCOMPILE:   "compile",
	opRUN:       "run",
	opDEFINE:    ":",
	opIMMEDIATE: "immediate",
	opREAD:      "read",
	opLOAD:      "@",
	opSTORE:     "!",
	opCLOAD:     "c@",
	opCSTORE:    "c!",
	opSUB:       "-",
	opADD:       "+",
	opAND:       "and",
	opOR:        "or",
	opXOR:       "xor",
	opINV:       "invert",
	opSHL:       "lshift",
	opSHR:       "rshift",
	opMUL:       "*",
	opDIV:       "/",
	opULESS:     "u<",
	opUMORE:     "u>",
	opSLESS:     "<",
	opSMORE:     ">",
	opEXIT:      "exit",
	opEMIT:      "_emit",
	opKEY:       "key",
	opFROMR:     "r>",
	opTOR:       ">r",
	opBRANCH:    "branch",
	opQBRANCH:   "?branch",
	opPNUM:      "pnum",
	opQUOTE:     "'",
	opCOMMA:     ",",
	opEQUAL:     "=",
	opSWAP:      "swap",
	opDUP:       "dup",
	opDROP:      "drop",
	opOVER:      "over",
	opTAIL:      "tail",
	opBSAVE:     "bsave",
	opBLOAD:     "bload",
	opFIND:      "find",
	opPRINT:     "print",
	opDEPTH:     "depth",
	opCLOCK:     "clock",
	opEVALUATE:  "evaluate",
	opPSTK:      ".s",
	opRESTART:   "restart",
	opSYSTEM:    "system",
	opFCLOSE:    "close-file",
	opFOPEN:     "open-file",
	opFDELETE:   "delete-file",
	opFREAD:     "read-file",
	opFWRITE:    "write-file",
	opFPOS:      "file-position",
	opFSEEK:     "reposition-file",
	opFFLUSH:    "flush-file",
	opFRENAME:   "rename-file",
}

func (op opcode) String() string {
	if int(op) >= 0 && int(op) < len(instructionNames) {
		if name := instructionNames[op]; name != "" {
			return name
		}
	}
	return "opcode(?)"
}
