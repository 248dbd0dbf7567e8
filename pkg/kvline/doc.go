// Package kvline parses key=value log lines and encodes them as JSON objects.
//
// # Line Format
//
// Each line is a sequence of pairs separated by exactly one space:
//
//	key=value key2="quoted value" key3=x
//
// # Grammar
//
//	LOG_ENTRY   ::= PAIR (SPACE PAIR)*
//	PAIR        ::= KEY '=' VALUE
//	KEY         ::= KEY_CHAR+
//	VALUE       ::= WORD_CHAR+ | '"' QVALUE '"'
//	QVALUE      ::= (WORD_CHAR | WHITESPACE | '\\' ANY | '\"')*
//	SPACE       ::= exactly one 0x20 byte
//	WORD_CHAR   ::= any byte that is not 0x20, '=', '"' or 0x0A
//	KEY_CHAR    ::= WORD_CHAR that is not '\t', '\v', '\f' or '\r'
//
// # Quoted Values
//
// Inside quotes a backslash makes the following byte literal: \" gives ",
// \\ gives \ and \n gives n. Bare values take the backslash as a normal byte.
//
// # Examples
//
// Example 1: bare and quoted values
//
//	user=alice action="log in" count=3
//
// encodes as
//
//	{"user":"alice","action":"log in","count":"3"}
//
// Example 2: escaped quotes
//
//	msg="she said \"hi\""
//
// encodes as
//
//	{"msg":"she said \"hi\""}
//
// Example 3: the empty line encodes as {}.
//
// # Binary Data
//
// Values are bytes, not text. Invalid UTF-8 passes through the parser and the
// encoder unchanged. Control bytes are escaped in the JSON output.
package kvline
