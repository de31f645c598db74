package token

// Type identifies the category of a token.
type Type string

// Token carries one lexical item along with its source position. Error
// tokens carry their diagnostic message in the Lexeme field.
type Token struct {
	Type   Type
	Lexeme string
	Line   int
	Column int
}

const (
	Error Type = "ERROR"
	EOF   Type = "EOF"

	// identifiers and literals
	Identifier Type = "IDENTIFIER"
	String     Type = "STRING"
	Number     Type = "NUMBER"

	// keywords
	And    Type = "AND"
	Class  Type = "CLASS"
	Else   Type = "ELSE"
	False  Type = "FALSE"
	For    Type = "FOR"
	Fun    Type = "FUN"
	If     Type = "IF"
	Nil    Type = "NIL"
	Or     Type = "OR"
	Print  Type = "PRINT"
	Return Type = "RETURN"
	Super  Type = "SUPER"
	This   Type = "THIS"
	True   Type = "TRUE"
	Var    Type = "VAR"
	While  Type = "WHILE"

	// single-character punctuators
	LeftParen    Type = "LPAREN"   // (
	RightParen   Type = "RPAREN"   // )
	LeftBrace    Type = "LBRACE"   // {
	RightBrace   Type = "RBRACE"   // }
	LeftBracket  Type = "LBRACKET" // [
	RightBracket Type = "RBRACKET" // ]
	Comma        Type = "COMMA"    // ,
	Dot          Type = "DOT"      // .
	Colon        Type = "COLON"    // :
	Semicolon    Type = "SEMICOLON"
	Minus        Type = "MINUS" // -
	Plus         Type = "PLUS"  // +
	Slash        Type = "SLASH" // /
	Star         Type = "STAR"  // *

	// one- or two-character operators
	Bang         Type = "BANG"         // !
	BangEqual    Type = "BANGEQUAL"    // !=
	Equal        Type = "EQUAL"        // =
	EqualEqual   Type = "EQUALEQUAL"   // ==
	Greater      Type = "GREATER"      // >
	GreaterEqual Type = "GREATEREQUAL" // >=
	Less         Type = "LESS"         // <
	LessEqual    Type = "LESSEQUAL"    // <=
)

var keywords = map[string]Type{
	"and":    And,
	"class":  Class,
	"else":   Else,
	"false":  False,
	"for":    For,
	"fun":    Fun,
	"if":     If,
	"nil":    Nil,
	"or":     Or,
	"print":  Print,
	"return": Return,
	"super":  Super,
	"this":   This,
	"true":   True,
	"var":    Var,
	"while":  While,
}

// LookupIdent returns the keyword token type or Identifier.
func LookupIdent(ident string) Type {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return Identifier
}
