/*
Package tuning is the Delta Application Pipeline. It takes the surviving
Proposal out of the Guards Coordinator and turns it into the next
RuntimeOverrides snapshot:

	merge -> clamp -> no-op detection (1e-9 epsilon) -> signature
	-> atomic write -> iteration-summary record -> TUNING_REPORT.json append

No-op and write-failure are both terminal: neither advances the on-disk
signature, and both are recorded in the closed skip-reason taxonomy
alongside whatever guard tags already narrowed the proposal upstream. Both
paths record Applied=false, so neither is what the Verifier calls
signature-stuck: a record with Applied=true whose before and after
signatures are equal.
*/
package tuning
