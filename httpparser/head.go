package httpparser

// ParseRequest parses a request head: request line and headers. lastLen is the number of
// bytes of buf already examined by a previous call that returned Incomplete, so the scan
// for the terminating blank line is resumed rather than restarted. Callbacks are only
// invoked once the whole head is present, therefore the sequence of callbacks doesn't
// depend on how the input was split.
//
// Returns the length of the head, Incomplete or Malformed.
func (p *Parser) ParseRequest(buf []byte, lastLen int) int {
	start := skipEmptyLines(buf)
	end := findHeadEnd(buf, max(lastLen-3, start))
	if end == -1 {
		return Incomplete
	}

	head := buf[start:end]
	offset := p.requestLine(head)
	if offset == Malformed || !p.headers(head[offset:]) {
		return Malformed
	}

	return end
}

// ParseResponse does the same as ParseRequest, but for a status line.
func (p *Parser) ParseResponse(buf []byte, lastLen int) int {
	start := skipEmptyLines(buf)
	end := findHeadEnd(buf, max(lastLen-3, start))
	if end == -1 {
		return Incomplete
	}

	head := buf[start:end]
	offset := p.statusLine(head)
	if offset == Malformed || !p.headers(head[offset:]) {
		return Malformed
	}

	return end
}

// skipEmptyLines skips CRLFs some clients leave after a body of a previous request.
func skipEmptyLines(buf []byte) int {
	i := 0
	for i < len(buf) && (buf[i] == '\r' || buf[i] == '\n') {
		i++
	}

	return i
}

// findHeadEnd returns the offset right after the blank line terminating the head, or -1.
// Both CRLF and bare LF line endings are recognized.
func findHeadEnd(buf []byte, from int) int {
	for i := from; i < len(buf); i++ {
		if buf[i] != '\n' {
			continue
		}

		j := i + 1
		if j < len(buf) && buf[j] == '\r' {
			j++
		}

		if j < len(buf) && buf[j] == '\n' {
			return j + 1
		}
	}

	return -1
}

// lineEnd consumes a line ending at the offset.
func lineEnd(head []byte, i int) int {
	switch {
	case i >= len(head):
		return Malformed
	case head[i] == '\n':
		return i + 1
	case head[i] == '\r' && i+1 < len(head) && head[i+1] == '\n':
		return i + 2
	default:
		return Malformed
	}
}

func skipSpaces(head []byte, i int) int {
	for i < len(head) && head[i] == ' ' {
		i++
	}

	return i
}

func (p *Parser) requestLine(head []byte) int {
	i := 0
	for i < len(head) && isToken[head[i]] {
		i++
	}

	if i == 0 || i >= len(head) || head[i] != ' ' {
		return Malformed
	}

	if !emit(p.OnMethodValue, head[:i]) {
		return Malformed
	}

	i = skipSpaces(head, i)
	target, query := i, -1

	for ; i < len(head); i++ {
		c := head[i]
		if c <= ' ' || c == 0x7F {
			break
		}

		if c == '?' && query == -1 {
			query = i
		}
	}

	if i == target || i >= len(head) || head[i] != ' ' {
		return Malformed
	}

	if query == -1 {
		if !emit(p.OnPathValue, head[target:i]) {
			return Malformed
		}
	} else if !emit(p.OnPathValue, head[target:query]) || !emit(p.OnQueryValue, head[query+1:i]) {
		return Malformed
	}

	i = skipSpaces(head, i)
	version := i
	for i < len(head) && head[i] > ' ' && head[i] != 0x7F {
		i++
	}

	if i == version || !emit(p.OnVersion, head[version:i]) {
		return Malformed
	}

	return lineEnd(head, i)
}

func (p *Parser) statusLine(head []byte) int {
	i := 0
	for i < len(head) && head[i] > ' ' && head[i] != 0x7F {
		i++
	}

	if i == 0 || i >= len(head) || head[i] != ' ' {
		return Malformed
	}

	if !emit(p.OnVersion, head[:i]) {
		return Malformed
	}

	i = skipSpaces(head, i)
	if i+3 > len(head) {
		return Malformed
	}

	for _, c := range head[i : i+3] {
		if c < '0' || c > '9' {
			return Malformed
		}
	}

	if !emit(p.OnStatusCode, head[i:i+3]) {
		return Malformed
	}

	i += 3
	switch {
	case i >= len(head):
		return Malformed
	case head[i] == ' ':
		i = skipSpaces(head, i)
	case head[i] != '\r' && head[i] != '\n':
		return Malformed
	}

	message := i
	for i < len(head) && head[i] != '\r' && head[i] != '\n' {
		if isCtl(head[i]) {
			return Malformed
		}

		i++
	}

	if !emit(p.OnStatusMessage, head[message:i]) {
		return Malformed
	}

	return lineEnd(head, i)
}

func (p *Parser) headers(head []byte) bool {
	i := 0

	for first := true; ; first = false {
		if i >= len(head) {
			return false
		}

		switch head[i] {
		case '\n':
			return true
		case '\r':
			return lineEnd(head, i) != Malformed
		case ' ', '\t':
			if first {
				return false
			}

			for i < len(head) && (head[i] == ' ' || head[i] == '\t') {
				i++
			}

			if !emit(p.OnHeaderField, head[i:i]) {
				return false
			}
		default:
			name := i
			for i < len(head) && isToken[head[i]] {
				i++
			}

			if i == name || i >= len(head) || head[i] != ':' {
				return false
			}

			if !emit(p.OnHeaderField, head[name:i]) {
				return false
			}

			i++
			for i < len(head) && (head[i] == ' ' || head[i] == '\t') {
				i++
			}
		}

		value := i
		for i < len(head) && head[i] != '\r' && head[i] != '\n' {
			if isCtl(head[i]) {
				return false
			}

			i++
		}

		valueEnd := i
		for valueEnd > value && (head[valueEnd-1] == ' ' || head[valueEnd-1] == '\t') {
			valueEnd--
		}

		if !emit(p.OnHeaderValue, head[value:valueEnd]) {
			return false
		}

		if i = lineEnd(head, i); i == Malformed {
			return false
		}
	}
}

func isCtl(c byte) bool {
	return (c < ' ' && c != '\t') || c == 0x7F
}
