/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package errors

// Code ranges, one per core component. Each component registers its own
// message function with RegisterIdFctMessage(MinPkgXxx, ...)
// so that looking up a code anywhere walks to the nearest lower-bound range.
const (
	MinPkgProtocol = 100  // codec: decode/encode framing errors (component A)
	MinPkgSource   = 200  // PROXY demux (component B)
	MinPkgEndpoint = 300  // UDP endpoint, SOCKS relay (component C)
	MinPkgQuery    = 400  // query tracker (component D)
	MinPkgHandler  = 500  // registration handler / state machine (component E)
	MinPkgSession  = 600  // session-key manager (component F)
	MinPkgRegistry = 700  // registry interface + backends (component G)
	MinPkgWeb      = 800  // JSON HTTP read path (component H)
	MinPkgConfig   = 900  // launcher configuration

	MinAvailable = 1000
)
