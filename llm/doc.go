// Package llm is the completion interface stages talk to: a Client that
// turns a prompt into text, plus the normalization helpers that make raw
// model output usable (reasoning-block stripping, fenced-code extraction,
// token estimation, image attachment).
package llm
