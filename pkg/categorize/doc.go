// Package categorize assigns transactions to a closed category taxonomy
// using a language model.
//
// Classification is per row and never fatal: model failures, unparsable
// output and pairs outside the taxonomy all resolve to an empty
// Classification so a batch always completes.
package categorize
