// Package application contém os casos de uso do rate limit distribuído e do
// limite de concorrência.
//
// Depende apenas do pacote domain e não conhece net/http.
// Service.Decide conta o hit e devolve uma Decision; Refund e Reset cuidam
// do reembolso (skipSuccessful/skipFailed) e do override administrativo.
package application
