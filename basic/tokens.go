// Package basic decodes tokenized Color/Dragon BASIC programs back to
// their source text (spec.md §4.6). The token table is data, not
// design — it need only map ids to their mnemonics faithfully.
package basic

// oneByteTokens maps single-byte token ids (0x80-0xFE) to their
// mnemonic, the statement/operator/function set of Color and Dragon
// BASIC.
var oneByteTokens = map[byte]string{
	0x80: "FOR",
	0x81: "GO",
	0x82: "REM",
	0x83: "ELSE",
	0x84: "IF",
	0x85: "DATA",
	0x86: "PRINT",
	0x87: "ON",
	0x88: "INPUT",
	0x89: "END",
	0x8A: "NEXT",
	0x8B: "DIM",
	0x8C: "READ",
	0x8D: "LET",
	0x8E: "GOTO",
	0x8F: "RUN",
	0x90: "RESTORE",
	0x91: "GOSUB",
	0x92: "RETURN",
	0x93: "STOP",
	0x94: "POKE",
	0x95: "CONT",
	0x96: "LIST",
	0x97: "CLEAR",
	0x98: "NEW",
	0x99: "CLOAD",
	0x9A: "CSAVE",
	0x9B: "OPEN",
	0x9C: "CLOSE",
	0x9D: "LLIST",
	0x9E: "SET",
	0x9F: "RESET",
	0xA0: "CLS",
	0xA1: "MOTOR",
	0xA2: "SOUND",
	0xA3: "AUDIO",
	0xA4: "EXEC",
	0xA5: "SKIPF",
	0xA6: "TAB(",
	0xA7: "TO",
	0xA8: "SUB",
	0xA9: "THEN",
	0xAA: "NOT",
	0xAB: "STEP",
	0xAC: "OFF",
	0xAD: "+",
	0xAE: "-",
	0xAF: "*",
	0xB0: "/",
	0xB1: "^",
	0xB2: "AND",
	0xB3: "OR",
	0xB4: ">",
	0xB5: "=",
	0xB6: "<",
	0xB7: "SGN",
	0xB8: "INT",
	0xB9: "ABS",
	0xBA: "USR",
	0xBB: "RND",
	0xBC: "SQR",
	0xBD: "LOG",
	0xBE: "EXP",
	0xBF: "SIN",
	0xC0: "COS",
	0xC1: "TAN",
	0xC2: "ATN",
	0xC3: "PEEK",
	0xC4: "LEN",
	0xC5: "STR$",
	0xC6: "VAL",
	0xC7: "ASC",
	0xC8: "CHR$",
	0xC9: "EOF",
	0xCA: "JOYSTK",
	0xCB: "LEFT$",
	0xCC: "RIGHT$",
	0xCD: "MID$",
	0xCE: "POINT",
	0xCF: "INKEY$",
	0xD0: "MEM",
	0xD1: "ATTR$",
}

// twoByteTokens maps the second byte of an 0xFF-prefixed token to its
// mnemonic — Extended Color BASIC's graphics/disk command set.
var twoByteTokens = map[byte]string{
	0x80: "DEL",
	0x81: "EDIT",
	0x82: "TRON",
	0x83: "TROFF",
	0x84: "LINE",
	0x85: "PCLS",
	0x86: "PSET",
	0x87: "PRESET",
	0x88: "SCREEN",
	0x89: "PCLEAR",
	0x8A: "COLOR",
	0x8B: "CIRCLE",
	0x8C: "PAINT",
	0x8D: "GET",
	0x8E: "PUT",
	0x8F: "DRAW",
	0x90: "PCOPY",
	0x91: "PMODE",
	0x92: "PLAY",
	0x93: "DLOAD",
	0x94: "RENUM",
	0x95: "fn",
	0x96: "TRON",
	0x97: "DIR",
	0x98: "DRIVE",
	0x99: "FIELD",
	0x9A: "FILES",
	0x9B: "KILL",
	0x9C: "LOAD",
	0x9D: "LSET",
	0x9E: "MERGE",
	0x9F: "RENAME",
	0xA0: "RSET",
	0xA1: "SAVE",
	0xA2: "WRITE",
	0xA3: "VERIFY",
	0xA4: "UNLOAD",
	0xA5: "DSKI$",
	0xA6: "DSKO$",
	0xA7: "BACKUP",
	0xA8: "COPY",
	0xA9: "TYPE",
}
