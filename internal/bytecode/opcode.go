package bytecode

// Opcodes. The L forms carry a 16-bit big-endian operand where the short
// form carries a single byte.
const (
	OpNil byte = iota
	OpTrue
	OpFalse
	OpConst  // 1-byte constant index
	OpConstL // 2-byte constant index
	OpPop
	OpPrint // 1-byte value count

	OpDef // define global, 1-byte name constant
	OpDefL
	OpGld // load global
	OpGldL
	OpGst // store to existing global
	OpGstL

	OpLd // load local slot
	OpLdL
	OpSt // store top into local slot, no pop
	OpStL

	OpNeg
	OpNot
	OpEq
	OpLt
	OpLe
	OpAdd
	OpSub
	OpMul
	OpDiv

	OpJmp  // 2-byte unsigned forward offset
	OpJmpF // as OpJmp, taken when top of stack is falsey

	OpCall // 1-byte argument count
	OpRet

	OpMap  // 1-byte pair count
	OpGet  // map field load, 1-byte name constant
	OpSet  // map field store, 1-byte name constant
	OpGetI // map load with runtime key
	OpSetI // map store with runtime key

	OpCount
)

var opNames = [OpCount]string{
	OpNil:    "NIL",
	OpTrue:   "TRUE",
	OpFalse:  "FALSE",
	OpConst:  "CONST",
	OpConstL: "CONSTL",
	OpPop:    "POP",
	OpPrint:  "PRINT",
	OpDef:    "DEF",
	OpDefL:   "DEFL",
	OpGld:    "GLD",
	OpGldL:   "GLDL",
	OpGst:    "GST",
	OpGstL:   "GSTL",
	OpLd:     "LD",
	OpLdL:    "LDL",
	OpSt:     "ST",
	OpStL:    "STL",
	OpNeg:    "NEG",
	OpNot:    "NOT",
	OpEq:     "EQ",
	OpLt:     "LT",
	OpLe:     "LE",
	OpAdd:    "ADD",
	OpSub:    "SUB",
	OpMul:    "MUL",
	OpDiv:    "DIV",
	OpJmp:    "JMP",
	OpJmpF:   "JMPF",
	OpCall:   "CALL",
	OpRet:    "RET",
	OpMap:    "MAP",
	OpGet:    "GET",
	OpSet:    "SET",
	OpGetI:   "GETI",
	OpSetI:   "SETI",
}

// OpName returns the mnemonic for an opcode, or "?" for malformed bytes.
func OpName(op byte) string {
	if op < OpCount && opNames[op] != "" {
		return opNames[op]
	}
	return "?"
}
