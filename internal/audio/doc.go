// Package audio converts between Twilio telephony audio and engine audio.
//
// Twilio media streams carry base64 8kHz μ-law. Engines read and write assets
// in whatever EncodingInfo the gateway is configured with, by default 24kHz
// 16-bit linear PCM in and 8kHz μ-law out:
//
//	media payload -> base64 decode -> μ-law expand -> 8k to 24k -> input asset
//	output asset  -> (24k to 8k -> μ-law compand) -> base64 -> media payload
//
// G.711 companding uses github.com/zaf/g711. Resampling is linear
// interpolation with state carried across frames.
package audio
