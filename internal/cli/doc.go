// Package cli — команды инструмента vitrina.
//
// Команды общаются с API-сервером через HTTP-клиент и ничего не
// знают о базе данных. Вывод — таблицы через tabwriter либо JSON
// при флаге --json.
package cli
